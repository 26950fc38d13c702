package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/subject"
)

var ErrMaxSignInExceeded = errors.New("max concurrent sign-ins exceeded")

type Policy string

const (
	// PolicyEvict deactivates the oldest active sessions to make room.
	PolicyEvict Policy = "evict"
	// PolicyReject refuses the new sign-in instead.
	PolicyReject Policy = "reject"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyEvict, PolicyReject:
		return Policy(raw), nil
	}
	return "", fmt.Errorf("unknown session limit policy %q", raw)
}

// Limiter caps concurrently active refresh records per subject. The store has
// no transaction spanning count+evict+create, so the whole sequence runs
// inside a per-subject critical section; unrelated subjects never contend.
type Limiter struct {
	Repo   *repo.GormRepo
	Max    int
	Policy Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(r *repo.GormRepo, max int, policy Policy) *Limiter {
	return &Limiter{
		Repo:   r,
		Max:    max,
		Policy: policy,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock serializes issuance for one subject. The returned func releases it.
func (l *Limiter) Lock(subj subject.Subject) func() {
	l.mu.Lock()
	m, ok := l.locks[subj.String()]
	if !ok {
		m = &sync.Mutex{}
		l.locks[subj.String()] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Enforce runs under the subject lock, counting the record about to be
// created. Under the evict policy it returns the ids it deactivated, oldest
// first.
func (l *Limiter) Enforce(ctx context.Context, subj subject.Subject) ([]uint, error) {
	if l.Max <= 0 {
		return nil, nil
	}

	count, err := l.Repo.CountActive(ctx, subj)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}
	excess := int(count) + 1 - l.Max
	if excess <= 0 {
		return nil, nil
	}

	if l.Policy == PolicyReject {
		return nil, ErrMaxSignInExceeded
	}

	oldest, err := l.Repo.OldestActive(ctx, subj, excess)
	if err != nil {
		return nil, fmt.Errorf("find oldest sessions: %w", err)
	}

	evicted := make([]uint, 0, len(oldest))
	for _, record := range oldest {
		if err := l.Repo.Deactivate(ctx, record.ID, models.ReasonEvicted); err != nil {
			return evicted, fmt.Errorf("evict session %d: %w", record.ID, err)
		}
		evicted = append(evicted, record.ID)
	}
	return evicted, nil
}
