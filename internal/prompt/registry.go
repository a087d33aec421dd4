package prompt

import (
	"context"
	"sync"

	"github.com/astro5star/callshell/internal/call"
)

// Registry hands out one Prompt per call so a re-opened screen keeps the
// spent/unspent state of the first showing instead of minting a fresh
// decision.
type Registry struct {
	decider Decider

	mu      sync.Mutex
	prompts map[string]*Prompt
}

func NewRegistry(decider Decider) *Registry {
	return &Registry{decider: decider, prompts: make(map[string]*Prompt)}
}

// Open returns the prompt for inv, creating it on first use.
func (r *Registry) Open(ctx context.Context, inv call.Invite) *Prompt {
	r.mu.Lock()
	if p, ok := r.prompts[inv.CallID]; ok {
		r.mu.Unlock()
		return p
	}
	r.mu.Unlock()

	// Show may fire the pre-accept decision, so build outside the lock.
	p := Show(ctx, r.decider, inv)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.prompts[inv.CallID]; ok {
		return existing
	}
	r.prompts[inv.CallID] = p
	return p
}

// Get returns the prompt for callID when one was opened.
func (r *Registry) Get(callID string) (*Prompt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prompts[callID]
	return p, ok
}

// Close drops the prompt for a call that reached a terminal state.
func (r *Registry) Close(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prompts, callID)
}
