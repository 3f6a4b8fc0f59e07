package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/observability"
	"github.com/sprintdeck/sprintdeck/internal/repository"
	"github.com/sprintdeck/sprintdeck/internal/security"
)

const (
	revokeReasonRotated       = "rotated"
	revokeReasonLogout        = "logout"
	revokeReasonLogoutAll     = "logout_all"
	revokeReasonPasswordReset = "password_reset"
	revokeReasonPasswordChange = "password_change"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type LoginResult struct {
	User   domain.PublicUser `json:"user"`
	Tokens TokenPair         `json:"tokens"`
}

type RegisterResult struct {
	User    domain.PublicUser `json:"user"`
	Message string            `json:"message"`
}

// AuthService orchestrates registration, login, token refresh and the
// emailed one-time token flows. It owns the login precedence (lock check,
// failure threshold, password, email verification, active flag — in that
// order) and the refresh rotation protocol.
type AuthService struct {
	users        repository.UserRepository
	sessions     repository.SessionRepository
	attempts     repository.LoginAttemptRepository
	actionTokens repository.ActionTokenRepository
	hasher       *security.PasswordHasher
	codec        *security.TokenCodec
	lockout      LockoutPolicy
	abuse        AuthAbuseGuard
	mailer       Mailer
	logger       *slog.Logger

	verificationTTL time.Duration
	resetTTL        time.Duration
}

type AuthServiceDeps struct {
	Users        repository.UserRepository
	Sessions     repository.SessionRepository
	Attempts     repository.LoginAttemptRepository
	ActionTokens repository.ActionTokenRepository
	Hasher       *security.PasswordHasher
	Codec        *security.TokenCodec
	Lockout      LockoutPolicy
	Abuse        AuthAbuseGuard
	Mailer       Mailer
	Logger       *slog.Logger

	VerificationTokenTTL  time.Duration
	PasswordResetTokenTTL time.Duration
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	if deps.Abuse == nil {
		deps.Abuse = NewNoopAuthAbuseGuard()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.VerificationTokenTTL <= 0 {
		deps.VerificationTokenTTL = 24 * time.Hour
	}
	if deps.PasswordResetTokenTTL <= 0 {
		deps.PasswordResetTokenTTL = time.Hour
	}
	return &AuthService{
		users:           deps.Users,
		sessions:        deps.Sessions,
		attempts:        deps.Attempts,
		actionTokens:    deps.ActionTokens,
		hasher:          deps.Hasher,
		codec:           deps.Codec,
		lockout:         deps.Lockout,
		abuse:           deps.Abuse,
		mailer:          deps.Mailer,
		logger:          deps.Logger,
		verificationTTL: deps.VerificationTokenTTL,
		resetTTL:        deps.PasswordResetTokenTTL,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a credential with an unverified email and queues the
// verification token. The plaintext secret goes only to the mailer.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*RegisterResult, error) {
	if res := security.ValidateStrength(password); !res.OK {
		return nil, &WeakPasswordError{Violations: res.Violations}
	}
	email = normalizeEmail(email)

	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	if err := s.issueActionToken(ctx, user, domain.TokenPurposeEmailVerify); err != nil {
		return nil, err
	}

	observability.Audit(ctx, "user_registered", "user_id", user.ID)
	return &RegisterResult{
		User:    user.Public(),
		Message: "registration successful, please check your email to verify your account",
	}, nil
}

// Login walks the lockout precedence and, when every gate passes, issues an
// access+refresh pair and persists the session record.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*LoginResult, error) {
	email = normalizeEmail(email)

	if cooldown, err := s.abuse.Check(ctx, AuthAbuseScopeLogin, email, ip); err != nil {
		s.logger.WarnContext(ctx, "abuse guard check failed", "error", err)
	} else if cooldown > 0 {
		observability.RecordAuthLogin("cooldown")
		return nil, ErrLoginCooldown
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same rejection as a wrong password; account existence must
			// not be observable.
			s.registerAbuseFailure(ctx, email, ip)
			observability.RecordAuthLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if state := s.lockout.Evaluate(user.LockedUntil, 0, now); state == LockoutActive {
		observability.RecordAuthLogin("locked")
		return nil, ErrAccountLocked
	}

	failed, err := s.attempts.CountFailedSince(user.ID, s.lockout.WindowStart(now))
	if err != nil {
		return nil, err
	}
	if s.lockout.Evaluate(user.LockedUntil, failed, now) == LockoutTriggered {
		until := s.lockout.LockUntil(now)
		if err := s.users.SetLockedUntil(user.ID, &until); err != nil {
			return nil, err
		}
		observability.RecordLockoutTransition("threshold_exceeded")
		observability.Audit(ctx, "account_locked", "user_id", user.ID, "until", until)
		observability.RecordAuthLogin("locked")
		return nil, ErrTooManyAttempts
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		attempt := &domain.LoginAttempt{UserID: user.ID, Success: false, IP: ip, UserAgent: userAgent}
		if err := s.attempts.Create(attempt); err != nil {
			return nil, err
		}
		s.registerAbuseFailure(ctx, email, ip)
		observability.RecordAuthLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	// Correct password from here on; these rejections are informative and
	// never count as failed attempts.
	if !user.EmailVerified {
		observability.RecordAuthLogin("unverified")
		return nil, ErrEmailNotVerified
	}
	if !user.Active {
		observability.RecordAuthLogin("deactivated")
		return nil, ErrAccountDeactivated
	}

	attempt := &domain.LoginAttempt{UserID: user.ID, Success: true, IP: ip, UserAgent: userAgent}
	if err := s.attempts.Create(attempt); err != nil {
		return nil, err
	}
	if err := s.users.RecordLoginSuccess(user.ID, now); err != nil {
		return nil, err
	}
	if err := s.abuse.Reset(ctx, AuthAbuseScopeLogin, email, ip); err != nil {
		s.logger.WarnContext(ctx, "abuse guard reset failed", "error", err)
	}

	pair, err := s.issuePair(user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin("success")
	observability.Audit(ctx, "user_logged_in", "user_id", user.ID, "ip", ip)
	return &LoginResult{User: user.Public(), Tokens: *pair}, nil
}

// Refresh rotates a refresh token: the presented token is verified, matched
// against the user's active sessions by digest comparison, atomically
// revoked, and replaced with a fresh pair. A token that loses the revocation
// race is rejected like any other invalid token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		observability.RecordAuthRefresh("invalid_token")
		return nil, ErrInvalidRefreshToken
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAuthRefresh("invalid_token")
		return nil, ErrInvalidRefreshToken
	}

	match, err := s.findSessionByToken(userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if match == nil {
		observability.RecordAuthRefresh("not_found")
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthRefresh("user_missing")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.Active {
		observability.RecordAuthRefresh("inactive")
		return nil, ErrUserInactive
	}

	claimed, err := s.sessions.RevokeByID(match.ID, revokeReasonRotated)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// A concurrent refresh already spent this session.
		observability.RecordAuthRefresh("replayed")
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.issuePair(user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthRefresh("success")
	observability.Audit(ctx, "token_refreshed", "user_id", user.ID, "session_id", match.ID)
	return &LoginResult{User: user.Public(), Tokens: *pair}, nil
}

// Logout revokes the session matching the presented refresh token, or every
// session when no token is given. A token that matches nothing is not an
// error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, userID uint, refreshToken string) error {
	if refreshToken == "" {
		if _, err := s.sessions.RevokeByUserID(userID, revokeReasonLogoutAll); err != nil {
			observability.RecordAuthLogout("error")
			return err
		}
		observability.RecordAuthLogout("all")
		observability.Audit(ctx, "user_logged_out_everywhere", "user_id", userID)
		return nil
	}

	match, err := s.findSessionByToken(userID, refreshToken)
	if err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	if match == nil {
		observability.RecordAuthLogout("no_match")
		return nil
	}
	if _, err := s.sessions.RevokeByID(match.ID, revokeReasonLogout); err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	observability.RecordAuthLogout("success")
	observability.Audit(ctx, "user_logged_out", "user_id", userID, "session_id", match.ID)
	return nil
}

// VerifyEmail consumes a verification token. Unknown, expired and
// already-used tokens all fail identically.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	record, err := s.findActionToken(domain.TokenPurposeEmailVerify, token)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrInvalidActionToken
	}
	used, err := s.actionTokens.MarkUsed(record.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !used {
		return ErrInvalidActionToken
	}
	if err := s.users.MarkEmailVerified(record.UserID); err != nil {
		return err
	}
	observability.Audit(ctx, "email_verified", "user_id", record.UserID)
	return nil
}

// ForgotPassword issues a reset token when the email is known and reports
// success either way, so responses cannot confirm account existence.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if err := s.issueActionToken(ctx, user, domain.TokenPurposePasswordReset); err != nil {
		return err
	}
	observability.Audit(ctx, "password_reset_requested", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset token, installs the new password and
// revokes every session: a reset event forces re-login everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.findActionToken(domain.TokenPurposePasswordReset, token)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrInvalidActionToken
	}
	if res := security.ValidateStrength(newPassword); !res.OK {
		return &WeakPasswordError{Violations: res.Violations}
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(record.UserID, hash); err != nil {
		return err
	}
	used, err := s.actionTokens.MarkUsed(record.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !used {
		return ErrInvalidActionToken
	}
	if _, err := s.sessions.RevokeByUserID(record.UserID, revokeReasonPasswordReset); err != nil {
		return err
	}
	observability.Audit(ctx, "password_reset", "user_id", record.UserID)
	return nil
}

// ChangePassword verifies the current password before installing the new
// one. Unlike login, a wrong current password is reported distinctly; the
// caller is already authenticated.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrIncorrectPassword
	}
	if res := security.ValidateStrength(newPassword); !res.OK {
		return &WeakPasswordError{Violations: res.Violations}
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(userID, hash); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeByUserID(userID, revokeReasonPasswordChange); err != nil {
		return err
	}
	observability.Audit(ctx, "password_changed", "user_id", userID)
	return nil
}

// ValidateUser backs the authenticated request path: it confirms the token's
// subject still exists and is active, catching accounts deactivated after
// token issuance.
func (s *AuthService) ValidateUser(ctx context.Context, userID uint) (*domain.PublicUser, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserInactive
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	pub := user.Public()
	return &pub, nil
}

func (s *AuthService) registerAbuseFailure(ctx context.Context, email, ip string) {
	if _, err := s.abuse.RegisterFailure(ctx, AuthAbuseScopeLogin, email, ip); err != nil {
		s.logger.WarnContext(ctx, "abuse guard register failed", "error", err)
	}
}

// issuePair mints an access+refresh pair and persists the refresh secret's
// salted digest as a new session record.
func (s *AuthService) issuePair(user *domain.User, ip, userAgent string) (*TokenPair, error) {
	refresh, err := s.codec.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	claims, err := s.codec.VerifyRefreshToken(refresh)
	if err != nil {
		return nil, err
	}
	access, err := s.codec.IssueAccessToken(user.ID, user.Email, user.RoleNames())
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.HashShortLived(refresh)
	if err != nil {
		return nil, err
	}
	session := &domain.Session{
		UserID:    user.ID,
		TokenHash: hash,
		TokenID:   claims.ID,
		IP:        ip,
		UserAgent: userAgent,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

// findSessionByToken linear-scans the user's active sessions and compares
// the presented secret against each stored digest. Sessions cannot be
// indexed by secret because only salted digests are persisted.
func (s *AuthService) findSessionByToken(userID uint, refreshToken string) (*domain.Session, error) {
	sessions, err := s.sessions.ListActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if s.hasher.VerifyShortLived(refreshToken, sessions[i].TokenHash) {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// findActionToken scans spendable tokens of one purpose and hash-compares
// the presented secret. A nil result means no spendable token matched.
func (s *AuthService) findActionToken(purpose, token string) (*domain.ActionToken, error) {
	records, err := s.actionTokens.ListSpendableByPurpose(purpose)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if s.hasher.VerifyShortLived(token, records[i].TokenHash) {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (s *AuthService) issueActionToken(ctx context.Context, user *domain.User, purpose string) error {
	secret, err := security.GenerateToken(32)
	if err != nil {
		return err
	}
	hash, err := s.hasher.HashShortLived(secret)
	if err != nil {
		return err
	}
	ttl := s.verificationTTL
	if purpose == domain.TokenPurposePasswordReset {
		ttl = s.resetTTL
	}
	record := &domain.ActionToken{
		UserID:    user.ID,
		TokenHash: hash,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.actionTokens.Create(record); err != nil {
		return err
	}

	var sendErr error
	switch purpose {
	case domain.TokenPurposePasswordReset:
		sendErr = s.mailer.SendPasswordResetEmail(ctx, user.Email, secret)
	default:
		sendErr = s.mailer.SendVerificationEmail(ctx, user.Email, secret)
	}
	if sendErr != nil {
		s.logger.ErrorContext(ctx, "email delivery failed", "purpose", purpose, "user_id", user.ID, "error", sendErr)
	}
	return nil
}
