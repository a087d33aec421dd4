package bridge

import (
	"context"
	"fmt"
	"net/url"
)

// BootstrapURL builds the cold-start URL for an action. The page reads the
// decision from the query string, and the saved session travels along so a
// fresh page can sign in before joining.
func (b *Bridge) BootstrapURL(ctx context.Context, a Action) (string, error) {
	q := url.Values{}
	switch a.Kind {
	case AcceptViaAPI:
		q.Set("apiAcceptedCall", a.SessionID)
		q.Set("callType", a.CallType)
		q.Set("fromUserId", a.FromUserID)
	case AcceptViaSocket:
		q.Set("acceptedCall", a.SessionID)
		q.Set("callType", a.CallType)
		q.Set("autoAccept", "true")
	case Reject:
		q.Set("rejectedCall", a.SessionID)
	case ShowPopup:
		q.Set("incomingCall", a.SessionID)
		q.Set("callerName", a.CallerName)
		q.Set("callType", a.CallType)
	}

	if b.sessions != nil {
		sess, err := b.sessions.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("reading session for bootstrap: %w", err)
		}
		if sess != nil {
			q.Set("savedUserId", sess.UserID)
			q.Set("savedToken", sess.Token)
			q.Set("savedUserType", sess.UserType)
			q.Set("savedName", sess.Name)
			q.Set("savedPhone", sess.Phone)
		}
	}

	return b.baseURL + "/?" + q.Encode(), nil
}
