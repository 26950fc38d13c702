package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/hash"
	"github.com/Skotchmaster/auth_platform/internal/limiter"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/Skotchmaster/auth_platform/internal/tokens"
)

// AuthService orchestrates the token lifecycle: issuance, validation,
// refresh and revocation, with the refresh side of every session tracked in
// the store so it can be revoked before its encoded expiry.
type AuthService struct {
	Repo    *repo.GormRepo
	Codec   *tokens.Codec
	Limiter *limiter.Limiter
	Audit   audit.Publisher

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *AuthService) publish(ctx context.Context, event audit.Event) {
	if s.Audit == nil {
		return
	}
	event.At = s.now()
	if err := s.Audit.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Warn("audit_publish_failed", "action", event.Action, "error", err)
	}
}

// Issue creates a refresh record for the subject and mints both tokens.
// Session-limit enforcement and record creation run inside one per-subject
// critical section so two near-simultaneous logins cannot both pass the
// check before either commits. No partial result: a failure on any step
// leaves no issued session behind.
func (s *AuthService) Issue(ctx context.Context, subj subject.Subject) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.issue", "subject", subj.String())

	unlock := s.Limiter.Lock(subj)
	defer unlock()

	evicted, err := s.Limiter.Enforce(ctx, subj)
	for _, id := range evicted {
		s.publish(ctx, audit.Event{
			Action:      audit.ActionEvicted,
			SubjectType: string(subj.Type),
			SubjectID:   subj.ID,
			RecordID:    id,
			Reason:      models.ReasonEvicted,
		})
	}
	if err != nil {
		if errors.Is(err, limiter.ErrMaxSignInExceeded) {
			l.Warn("issue_rejected", "reason", "session limit")
			return nil, err
		}
		l.Error("issue_failed", "error", err)
		return nil, fmt.Errorf("enforce session limit: %w", err)
	}

	iat := s.now()
	refreshExp := iat.Add(s.RefreshTTL)
	refreshToken, err := s.Codec.EncodeRefresh(subj.String(), iat, refreshExp)
	if err != nil {
		l.Error("issue_failed", "error", err)
		return nil, err
	}

	record, err := s.Repo.CreateRefreshToken(ctx, subj, refreshToken)
	if err != nil {
		l.Error("issue_failed", "error", err)
		return nil, fmt.Errorf("create refresh record: %w", err)
	}

	accessExp := iat.Add(s.AccessTTL)
	accessToken, err := s.Codec.EncodeAccess(subj.String(), record.ID, iat, accessExp)
	if err != nil {
		// never hand out a session whose access token could not be minted
		_ = s.Repo.Deactivate(ctx, record.ID, models.ReasonLogout)
		l.Error("issue_failed", "error", err)
		return nil, err
	}

	s.publish(ctx, audit.Event{
		Action:      audit.ActionSessionIssued,
		SubjectType: string(subj.Type),
		SubjectID:   subj.ID,
		RecordID:    record.ID,
	})
	l.Info("session_issued", "record_id", record.ID)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Register creates an account for the given subject type. Credential
// handling stays out of the token lifecycle: Issue never sees passwords.
func (s *AuthService) Register(ctx context.Context, typ subject.Type, username, password string) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "subject_type", string(typ))

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", ErrValidation)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	account := models.Account{
		SubjectType:  string(typ),
		Username:     username,
		PasswordHash: pwHash,
		IsActive:     true,
	}
	if err := s.Repo.CreateAccount(ctx, &account); err != nil {
		if errors.Is(err, repo.ErrAccountExists) {
			l.Warn("register_failed", "reason", "account exists")
			return nil, err
		}
		l.Error("register_failed", "error", err)
		return nil, err
	}

	l.Info("account_created", "account_id", account.ID)
	return &account, nil
}

// Login verifies credentials and issues a session for the matched account.
func (s *AuthService) Login(ctx context.Context, typ subject.Type, username, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "subject_type", string(typ), "username", username)

	account, err := s.Repo.FindAccountByUsername(ctx, typ, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "reason", "unknown account")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "error", err)
		return nil, err
	}
	if !account.IsActive {
		l.Warn("login_failed", "reason", "account deactivated")
		return nil, ErrInvalidCredentials
	}
	if !hash.CheckPassword(account.PasswordHash, password) {
		l.Warn("login_failed", "reason", "bad password")
		return nil, ErrInvalidCredentials
	}

	return s.Issue(ctx, subject.Subject{Type: typ, ID: account.ID})
}
