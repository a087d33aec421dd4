package bridge

import (
	"fmt"
	"strings"
)

// probeScript returns the readiness check for a kind. The probe must
// evaluate to the string "true" only when the page surface the action
// script uses actually exists.
func probeScript(kind ActionKind) string {
	switch kind {
	case AcceptViaAPI:
		return `(function(){ return typeof window.initSession === 'function'; })()`
	case ShowPopup:
		return `(function(){ return typeof window.showIncomingCallPopup === 'function'; })()`
	case AcceptViaSocket:
		// Answering needs the connected socket and the signed-in local user.
		return `(function(){ return !!(window.state && window.state.socket && window.state.socket.connected && window.state.me); })()`
	default:
		return `(function(){ return !!(window.state && window.state.socket && window.state.socket.connected); })()`
	}
}

// actionScript builds the injection script for an action.
func actionScript(a Action) string {
	switch a.Kind {
	case AcceptViaAPI:
		// The backend already accepted; the page only joins the session.
		return fmt.Sprintf("window.initSession(%s, %s, %s, false, null);",
			jsString(a.SessionID), jsString(a.FromUserID), jsString(a.CallType))
	case AcceptViaSocket:
		// Answer over the page's socket; the session joins inside the ack,
		// once the reply names who is calling.
		return fmt.Sprintf(
			"window.state.socket.emit('answer-session-native', { sessionId: %s, accept: true, callType: %s }, "+
				"function(res) { if (res && res.ok && res.fromUserId) { window.initSession(%s, res.fromUserId, %s, false, null); } });",
			jsString(a.SessionID), jsString(a.CallType),
			jsString(a.SessionID), jsString(a.CallType))
	case Reject:
		return fmt.Sprintf(
			"window.state.socket.emit('answer-session-native', { sessionId: %s, accept: false });",
			jsString(a.SessionID))
	case ShowPopup:
		return fmt.Sprintf("window.showIncomingCallPopup(%s, %s, %s);",
			jsString(a.SessionID), jsString(a.CallerName), jsString(a.CallType))
	default:
		return ""
	}
}

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	" ", `\u2028`,
	" ", `\u2029`,
	"<", `\x3c`,
)

// jsString renders s as a single-quoted JS string literal. Values come off
// the wire, so everything that could break out of the literal is escaped.
func jsString(s string) string {
	return "'" + jsEscaper.Replace(s) + "'"
}
