package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// eofGrace is how long an input error waits for a Ctrl+C that may still be in flight.
const eofGrace = 100 * time.Millisecond

// SignalManager owns the context a chat session runs under.
//
// Ctrl+C or SIGTERM cancels the current context, which the Runner treats as the
// learner leaving: the session is ended and the final transcript reported.
// Reset arms a fresh context, so a caller that wants to survive an interrupt (for
// example to confirm before quitting) can keep the same manager.
type SignalManager struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager starts listening right away.
func NewSignalManager(parent context.Context) *SignalManager {
	sm := &SignalManager{parent: parent}
	sm.Reset()
	return sm
}

// Context is cancelled when the learner interrupts the chat.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Reset drops the current context and arms a new one.
func (sm *SignalManager) Reset() {
	sm.Stop()
	sm.ctx, sm.cancel = signal.NotifyContext(sm.parent, os.Interrupt, syscall.SIGTERM)
}

// Stop releases the signal registration.
func (sm *SignalManager) Stop() {
	if sm.cancel != nil {
		sm.cancel()
	}
}

// CheckRace gives a pending interrupt time to land after the input reader failed.
// Some terminals close stdin on Ctrl+C a moment before the signal is delivered;
// without the wait that shows up as a plain EOF instead of an interruption.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() != nil {
		return
	}
	timer := time.NewTimer(eofGrace)
	defer timer.Stop()
	select {
	case <-sm.ctx.Done():
	case <-timer.C:
	}
}
