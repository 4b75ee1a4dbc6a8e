package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pubdetect/internal/audit"
	"pubdetect/internal/backend"
	"pubdetect/internal/models"
	"pubdetect/internal/repository"
	"pubdetect/internal/security"
)

type AuthBackend interface {
	Login(ctx context.Context, username, password string) (backend.TokenResponse, error)
	Register(ctx context.Context, username, password string) (backend.TokenResponse, error)
}

// AuthResult is what the login and register forms render. SignedIn is
// set when the session now holds a token. Err is the cause behind Error.
type AuthResult struct {
	Success  bool
	SignedIn bool
	Error    string
	Err      error
}

type AuthService struct {
	backend  AuthBackend
	sessions repository.SessionStore
	audit    audit.Publisher
	flights  *flightGuard
	log      zerolog.Logger
}

func NewAuthService(
	backend AuthBackend,
	sessions repository.SessionStore,
	publisher audit.Publisher,
	log zerolog.Logger,
) *AuthService {
	if publisher == nil {
		publisher = audit.Discard{}
	}
	return &AuthService{
		backend:  backend,
		sessions: sessions,
		audit:    publisher,
		flights:  newFlightGuard(),
		log:      log,
	}
}

func (s *AuthService) Login(ctx context.Context, session *models.ClientSession, identifier, secret string) AuthResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.TrimSpace(secret) == "" {
		return AuthResult{Error: MsgFillAllFields, Err: ErrValidation}
	}
	if !s.flights.acquire(session.ID) {
		return AuthResult{Error: MsgInFlight, Err: ErrAuthInFlight}
	}
	defer s.flights.release(session.ID)

	tok, err := s.backend.Login(ctx, identifier, secret)
	if err != nil {
		s.log.Info().Err(err).Str("session_id", session.ID).Msg("login rejected")
		s.emit(ctx, models.AuditWarn, "auth.login_failed", err.Error(), "")
		return AuthResult{Error: authMessage(err, MsgInvalidCredentials), Err: err}
	}

	if err := s.signIn(ctx, session, tok.AccessToken, identifier); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("store session failed")
		return AuthResult{Error: MsgNetwork, Err: err}
	}
	s.emit(ctx, models.AuditInfo, "auth.login", "signed in", session.UserID)
	return AuthResult{Success: true, SignedIn: true}
}

// Register creates the account. When the backend answers with a token
// the session is signed in on the spot.
func (s *AuthService) Register(ctx context.Context, session *models.ClientSession, identifier, secret string) AuthResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.TrimSpace(secret) == "" {
		return AuthResult{Error: MsgFillAllFields, Err: ErrValidation}
	}
	if !s.flights.acquire(session.ID) {
		return AuthResult{Error: MsgInFlight, Err: ErrAuthInFlight}
	}
	defer s.flights.release(session.ID)

	tok, err := s.backend.Register(ctx, identifier, secret)
	if err != nil {
		s.log.Info().Err(err).Str("session_id", session.ID).Msg("registration rejected")
		s.emit(ctx, models.AuditWarn, "auth.register_failed", err.Error(), "")
		return AuthResult{Error: authMessage(err, MsgRegisterFailed), Err: err}
	}
	s.emit(ctx, models.AuditInfo, "auth.register", "account created for "+identifier, "")

	if tok.AccessToken == "" {
		return AuthResult{Success: true}
	}
	if err := s.signIn(ctx, session, tok.AccessToken, identifier); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("store session failed")
		return AuthResult{Success: true}
	}
	return AuthResult{Success: true, SignedIn: true}
}

// Logout clears the token and auth flag. The theme stays.
func (s *AuthService) Logout(ctx context.Context, session *models.ClientSession) error {
	userID := session.UserID
	session.SignOut()
	session.LastSeenAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, *session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if userID != "" {
		s.emit(ctx, models.AuditInfo, "auth.logout", "signed out", userID)
	}
	return nil
}

func (s *AuthService) signIn(ctx context.Context, session *models.ClientSession, token, identifier string) error {
	userID, username := identifier, identifier
	if identity, err := security.InspectAccessToken(token); err == nil {
		userID = identity.UserID
		if identity.Username != "" {
			username = identity.Username
		}
	} else {
		s.log.Debug().Err(err).Msg("token claims unreadable, using identifier as owner")
	}

	session.SignIn(token, userID, username)
	session.LastSeenAt = time.Now().UTC()
	return s.sessions.Save(ctx, *session)
}

func (s *AuthService) emit(ctx context.Context, level models.AuditLevel, action, message, userID string) {
	err := s.audit.Publish(context.WithoutCancel(ctx), models.AuditEvent{
		Level:      level,
		Action:     action,
		Message:    message,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit publish failed")
	}
}

// authMessage prefers the backend's own detail. Client errors without
// one get the form's fallback; everything else is a network error.
func authMessage(err error, fallback string) string {
	if detail := backend.DetailOf(err); detail != "" {
		return detail
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		return fallback
	}
	return MsgNetwork
}
