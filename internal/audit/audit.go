package audit

import (
	"context"
	"sync"
	"time"
)

const (
	ActionSessionIssued   = "session_issued"
	ActionAccessRefreshed = "access_refreshed"
	ActionLogout          = "logout"
	ActionForcedLogout    = "forced_logout"
	ActionEvicted         = "evicted"
	ActionExpiredOnRead   = "expired_on_read"
)

// Event records one transition in a session's lifecycle. Reason mirrors the
// deactivated_reason column where the action deactivated a record.
type Event struct {
	Action      string    `json:"action"`
	SubjectType string    `json:"subject_type"`
	SubjectID   uint      `json:"subject_id"`
	RecordID    uint      `json:"record_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans one event out to every sink. The first error is returned after
// all sinks ran; auth flows log it and move on.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recorder collects events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
