package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/subject"
)

// Logout deactivates one refresh record. Safe to repeat: the store update
// only touches still-active rows.
func (s *AuthService) Logout(ctx context.Context, recordID uint) error {
	record, err := s.Repo.FindRefreshByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("refresh record lookup: %w", err)
	}

	if err := s.Repo.Deactivate(ctx, recordID, models.ReasonLogout); err != nil {
		return fmt.Errorf("deactivate record: %w", err)
	}

	if record.IsActive {
		s.publish(ctx, audit.Event{
			Action:      audit.ActionLogout,
			SubjectType: record.SubjectType,
			SubjectID:   record.SubjectID,
			RecordID:    recordID,
			Reason:      models.ReasonLogout,
		})
	}
	logging.FromContext(ctx).Info("logout", "record_id", recordID)
	return nil
}

// LogoutByToken revokes the session behind a presented refresh token; this
// is what the logout endpoint calls with the client's cookie.
func (s *AuthService) LogoutByToken(ctx context.Context, raw string) error {
	record, err := s.Repo.FindRefreshByValue(ctx, raw)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("refresh record lookup: %w", err)
	}
	return s.Logout(ctx, record.ID)
}

// LogoutAll force-closes every active session of the subject. It takes the
// subject directly, not a token, so an administrative action can revoke a
// principal's sessions without holding any of their tokens.
func (s *AuthService) LogoutAll(ctx context.Context, subj subject.Subject) (int64, error) {
	affected, err := s.Repo.DeactivateAllActive(ctx, subj, models.ReasonForcedLogout)
	if err != nil {
		return 0, fmt.Errorf("deactivate all: %w", err)
	}

	if affected > 0 {
		s.publish(ctx, audit.Event{
			Action:      audit.ActionForcedLogout,
			SubjectType: string(subj.Type),
			SubjectID:   subj.ID,
			Reason:      models.ReasonForcedLogout,
		})
	}
	logging.FromContext(ctx).Info("forced_logout", "subject", subj.String(), "sessions_closed", affected)
	return affected, nil
}
