package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/subject"
)

// ValidateAccess checks an access token against both its signature and the
// current state of the refresh record it is chained to, then resolves the
// account. expected scopes the endpoint: an ADMIN token does not validate on
// a USER-only route. Every failure collapses into ErrUnauthorized.
func (s *AuthService) ValidateAccess(ctx context.Context, raw string, expected ...subject.Type) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "auth.validate_access")

	claims, err := s.Codec.DecodeAccess(raw)
	if err != nil {
		l.Warn("access_rejected", "reason", "decode", "error", err)
		return nil, ErrUnauthorized
	}
	if claims.RefID == 0 {
		l.Warn("access_rejected", "reason", "missing ref_id")
		return nil, ErrUnauthorized
	}

	record, err := s.Repo.FindRefreshByID(ctx, claims.RefID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("access_rejected", "reason", "record not found", "record_id", claims.RefID)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("refresh record lookup: %w", err)
	}

	if err := s.closeIfDead(ctx, record); err != nil {
		l.Warn("access_rejected", "reason", "record inactive or expired", "record_id", record.ID)
		return nil, err
	}

	subj, err := subject.Parse(claims.Subject)
	if err != nil {
		l.Warn("access_rejected", "reason", "malformed sub", "error", err)
		return nil, ErrUnauthorized
	}
	if !typeAllowed(subj.Type, expected) {
		l.Warn("access_rejected", "reason", "subject type out of scope", "subject", subj.String())
		return nil, ErrUnauthorized
	}

	account, err := s.Repo.FindAccount(ctx, subj)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("access_rejected", "reason", "unknown account", "subject", subj.String())
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if !account.IsActive {
		l.Warn("access_rejected", "reason", "account deactivated", "subject", subj.String())
		return nil, ErrUnauthorized
	}

	return account, nil
}

// ValidateRefresh exchanges a live refresh token for a new access token
// chained to the same record. The refresh token itself is not rotated.
func (s *AuthService) ValidateRefresh(ctx context.Context, raw string) (string, time.Time, error) {
	l := logging.FromContext(ctx).With("svc", "auth.validate_refresh")

	claims, err := s.Codec.DecodeRefresh(raw)
	if err != nil {
		l.Warn("refresh_rejected", "reason", "decode", "error", err)
		return "", time.Time{}, ErrUnauthorized
	}

	record, err := s.Repo.FindRefreshByValue(ctx, raw)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_rejected", "reason", "record not found")
			return "", time.Time{}, ErrUnauthorized
		}
		return "", time.Time{}, fmt.Errorf("refresh record lookup: %w", err)
	}

	if err := s.closeIfDead(ctx, record); err != nil {
		l.Warn("refresh_rejected", "reason", "record inactive or expired", "record_id", record.ID)
		return "", time.Time{}, err
	}

	iat := s.now()
	accessExp := iat.Add(s.AccessTTL)
	accessToken, err := s.Codec.EncodeAccess(claims.Subject, record.ID, iat, accessExp)
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return "", time.Time{}, err
	}

	s.publish(ctx, audit.Event{
		Action:      audit.ActionAccessRefreshed,
		SubjectType: record.SubjectType,
		SubjectID:   record.SubjectID,
		RecordID:    record.ID,
	})

	return accessToken, accessExp, nil
}

// closeIfDead fails on an inactive or TTL-expired record. An expired record
// that is still marked active gets deactivated on sight, so sessions whose
// refresh token outlived its TTL are lazily closed even if no refresh call
// ever happened. The conditional update keeps racing validators consistent.
func (s *AuthService) closeIfDead(ctx context.Context, record *models.RefreshToken) error {
	expired := record.Expired(s.now(), s.RefreshTTL)
	if record.IsActive && !expired {
		return nil
	}

	if record.IsActive && expired {
		if err := s.Repo.Deactivate(ctx, record.ID, models.ReasonExpiredOnRead); err != nil {
			return fmt.Errorf("deactivate expired record: %w", err)
		}
		s.publish(ctx, audit.Event{
			Action:      audit.ActionExpiredOnRead,
			SubjectType: record.SubjectType,
			SubjectID:   record.SubjectID,
			RecordID:    record.ID,
			Reason:      models.ReasonExpiredOnRead,
		})
	}
	return ErrUnauthorized
}

func typeAllowed(t subject.Type, expected []subject.Type) bool {
	for _, e := range expected {
		if t == e {
			return true
		}
	}
	return false
}
