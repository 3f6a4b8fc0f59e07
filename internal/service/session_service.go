package service

import (
	"context"
	"errors"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/observability"
	"github.com/sprintdeck/sprintdeck/internal/repository"
)

// SessionView is the session-listing projection. Token digests never leave
// the service layer; the non-secret token ID lets a client recognize its
// own session.
type SessionView struct {
	ID        uint      `json:"id"`
	TokenID   string    `json:"token_id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionService struct {
	sessions repository.SessionRepository
}

func NewSessionService(sessions repository.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

// ListSessions returns the user's active sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, userID uint) ([]SessionView, error) {
	records, err := s.sessions.ListActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(records))
	for _, r := range records {
		views = append(views, SessionView{
			ID:        r.ID,
			TokenID:   r.TokenID,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return views, nil
}

// RevokeSession revokes one of the caller's own sessions. A session that
// belongs to another user is indistinguishable from a missing one.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID uint) error {
	revoked, err := s.sessions.RevokeByIDForUser(userID, sessionID, "revoked_by_user")
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if !revoked {
		return ErrSessionNotFound
	}
	observability.Audit(ctx, "session_revoked", "user_id", userID, "session_id", sessionID)
	return nil
}
