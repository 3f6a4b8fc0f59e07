package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/repository"
	"github.com/sprintdeck/sprintdeck/internal/security"
)

type fakeUserRepo struct {
	users  map[uint]*domain.User
	nextID uint
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uint]*domain.User{}, nextID: 1}
}

func (r *fakeUserRepo) Create(user *domain.User) error {
	user.ID = r.nextID
	r.nextID++
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) FindByID(id uint) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) UpdatePasswordHash(userID uint, hash string) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) SetLockedUntil(userID uint, until *time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LockedUntil = until
	return nil
}

func (r *fakeUserRepo) RecordLoginSuccess(userID uint, at time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LockedUntil = nil
	u.LoginCount++
	u.LastLoginAt = &at
	return nil
}

func (r *fakeUserRepo) MarkEmailVerified(userID uint) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

type fakeSessionRepo struct {
	sessions map[uint]*domain.Session
	nextID   uint
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uint]*domain.Session{}, nextID: 1}
}

func (r *fakeSessionRepo) Create(s *domain.Session) error {
	s.ID = r.nextID
	r.nextID++
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	now := time.Now()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Valid(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) FindByIDForUser(userID, sessionID uint) (*domain.Session, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) RevokeByID(sessionID uint, reason string) (bool, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedReason = &reason
	return true, nil
}

func (r *fakeSessionRepo) RevokeByIDForUser(userID, sessionID uint, reason string) (bool, error) {
	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID || s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedReason = &reason
	return true, nil
}

func (r *fakeSessionRepo) RevokeByUserID(userID uint, reason string) (int64, error) {
	var n int64
	now := time.Now()
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			s.RevokedReason = &reason
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) CleanupExpired(retention time.Duration) (int64, error) {
	return 0, nil
}

func (r *fakeSessionRepo) activeCount(userID uint) int {
	out, _ := r.ListActiveByUserID(userID)
	return len(out)
}

type fakeAttemptRepo struct {
	attempts []domain.LoginAttempt
}

func (r *fakeAttemptRepo) Create(attempt *domain.LoginAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeAttemptRepo) CountFailedSince(userID uint, since time.Time) (int64, error) {
	var n int64
	for _, a := range r.attempts {
		if a.UserID == userID && !a.Success && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type fakeActionTokenRepo struct {
	tokens map[uint]*domain.ActionToken
	nextID uint
}

func newFakeActionTokenRepo() *fakeActionTokenRepo {
	return &fakeActionTokenRepo{tokens: map[uint]*domain.ActionToken{}, nextID: 1}
}

func (r *fakeActionTokenRepo) Create(token *domain.ActionToken) error {
	token.ID = r.nextID
	r.nextID++
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeActionTokenRepo) ListSpendableByPurpose(purpose string) ([]domain.ActionToken, error) {
	now := time.Now()
	var out []domain.ActionToken
	for _, t := range r.tokens {
		if t.Purpose == purpose && t.Spendable(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeActionTokenRepo) MarkUsed(tokenID uint, at time.Time) (bool, error) {
	t, ok := r.tokens[tokenID]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	t.UsedAt = &at
	return true, nil
}

// captureMailer records the plaintext secrets handed to the mailer so tests
// can complete the verification and reset flows.
type captureMailer struct {
	verificationTokens []string
	resetTokens        []string
}

func (m *captureMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.verificationTokens = append(m.verificationTokens, token)
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.resetTokens = append(m.resetTokens, token)
	return nil
}

func (m *captureMailer) lastVerification() string {
	if len(m.verificationTokens) == 0 {
		return ""
	}
	return m.verificationTokens[len(m.verificationTokens)-1]
}

func (m *captureMailer) lastReset() string {
	if len(m.resetTokens) == 0 {
		return ""
	}
	return m.resetTokens[len(m.resetTokens)-1]
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	attempts *fakeAttemptRepo
	tokens   *fakeActionTokenRepo
	mailer   *captureMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	codec := security.NewTokenCodec("sprintdeck-test", "test-access-secret", "test-refresh-secret", 15*time.Minute, 7*24*time.Hour)
	f := &authFixture{
		users:    newFakeUserRepo(),
		sessions: newFakeSessionRepo(),
		attempts: &fakeAttemptRepo{},
		tokens:   newFakeActionTokenRepo(),
		mailer:   &captureMailer{},
	}
	f.svc = NewAuthService(AuthServiceDeps{
		Users:        f.users,
		Sessions:     f.sessions,
		Attempts:     f.attempts,
		ActionTokens: f.tokens,
		Hasher:       security.NewPasswordHasher(16),
		Codec:        codec,
		Lockout:      LockoutPolicy{MaxAttempts: 3, LockoutDuration: 30 * time.Minute},
		Mailer:       f.mailer,
	})
	return f
}

const testPassword = "Str0ng!pass"

// registerVerified runs the register + verify flow and returns the user ID.
func (f *authFixture) registerVerified(t *testing.T, email string) uint {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.Register(ctx, email, testPassword, "Test User")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.svc.VerifyEmail(ctx, f.mailer.lastVerification()); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return res.User.ID
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Register(context.Background(), "weak@example.com", "weak", "")
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	if len(weak.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(weak.Violations), weak.Violations)
	}
}

func TestRegisterNormalizesEmailAndRejectsDuplicate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, "  Alice@Example.COM ", testPassword, "Alice")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", res.User.Email)
	}
	if _, err := f.svc.Register(ctx, "alice@example.com", testPassword, "Alice"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterStoresHashedPasswordAndQueuesVerification(t *testing.T) {
	f := newAuthFixture(t)
	res, err := f.svc.Register(context.Background(), "bob@example.com", testPassword, "Bob")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	stored := f.users.users[res.User.ID]
	if stored.PasswordHash == testPassword || stored.PasswordHash == "" {
		t.Fatalf("password stored without hashing")
	}
	if stored.EmailVerified {
		t.Fatal("new account must start unverified")
	}
	if f.mailer.lastVerification() == "" {
		t.Fatal("expected verification token to reach the mailer")
	}
	if f.mailer.lastVerification() == stored.PasswordHash {
		t.Fatal("verification token must not be the password hash")
	}
}

func TestLoginUnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "carol@example.com")

	_, errUnknown := f.svc.Login(ctx, "ghost@example.com", testPassword, "1.2.3.4", "ua")
	_, errWrong := f.svc.Login(ctx, "carol@example.com", "Wr0ng!pass", "1.2.3.4", "ua")

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("rejection messages differ: %q vs %q", errUnknown.Error(), errWrong.Error())
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "dave@example.com", testPassword, "Dave"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Login(ctx, "dave@example.com", testPassword, "ip", "ua"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	// A correct password against an unverified account is not a failed attempt.
	if n, _ := f.attempts.CountFailedSince(1, time.Now().Add(-time.Hour)); n != 0 {
		t.Fatalf("expected no failed attempts, got %d", n)
	}
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "erin@example.com")
	f.users.users[id].Active = false
	if _, err := f.svc.Login(ctx, "erin@example.com", testPassword, "ip", "ua"); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}

func TestLoginLocksAtThreshold(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "frank@example.com")

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Login(ctx, "frank@example.com", "Wr0ng!pass", "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	// Threshold reached: the next attempt triggers the lock before the
	// password is even checked.
	if _, err := f.svc.Login(ctx, "frank@example.com", testPassword, "ip", "ua"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if f.users.users[id].LockedUntil == nil {
		t.Fatal("expected locked_until to be set")
	}
	// While the lock holds, even the correct password is refused.
	if _, err := f.svc.Login(ctx, "frank@example.com", testPassword, "ip", "ua"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginSucceedsAfterLockExpires(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "grace@example.com")

	past := time.Now().Add(-time.Minute)
	f.users.users[id].LockedUntil = &past

	res, err := f.svc.Login(ctx, "grace@example.com", testPassword, "ip", "ua")
	if err != nil {
		t.Fatalf("Login after lock expiry: %v", err)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if f.users.users[id].LockedUntil != nil {
		t.Fatal("successful login must clear the lock")
	}
}

func TestLoginIssuesSessionRecord(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "heidi@example.com")

	res, err := f.svc.Login(ctx, "heidi@example.com", testPassword, "10.0.0.1", "cli/1.0")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	active, _ := f.sessions.ListActiveByUserID(id)
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}
	if active[0].TokenHash == res.Tokens.RefreshToken {
		t.Fatal("session must store a digest, not the refresh token")
	}
	if active[0].IP != "10.0.0.1" || active[0].UserAgent != "cli/1.0" {
		t.Fatalf("session metadata not recorded: %+v", active[0])
	}
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "ivan@example.com")

	login, err := f.svc.Login(ctx, "ivan@example.com", testPassword, "ip", "ua")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	first := login.Tokens.RefreshToken

	rotated, err := f.svc.Refresh(ctx, first, "ip", "ua")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.Tokens.RefreshToken == first {
		t.Fatal("refresh must issue a new refresh token")
	}

	// The spent token is dead.
	if _, err := f.svc.Refresh(ctx, first, "ip", "ua"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}
	// The rotated token still works.
	if _, err := f.svc.Refresh(ctx, rotated.Tokens.RefreshToken, "ip", "ua"); err != nil {
		t.Fatalf("Refresh with rotated token: %v", err)
	}
}

func TestRefreshRejectsGarbageAndForeignTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "judy@example.com")

	if _, err := f.svc.Refresh(ctx, "not-a-token", "ip", "ua"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for garbage, got %v", err)
	}

	// A structurally valid refresh token with no matching session record.
	codec := security.NewTokenCodec("sprintdeck-test", "test-access-secret", "test-refresh-secret", time.Minute, time.Hour)
	orphan, err := codec.IssueRefreshToken(1)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, orphan, "ip", "ua"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for orphan token, got %v", err)
	}
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "kate@example.com")

	login, err := f.svc.Login(ctx, "kate@example.com", testPassword, "ip", "ua")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.users.users[id].Active = false
	if _, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken, "ip", "ua"); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestLogoutRevokesMatchingSessionOnly(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "mallory@example.com")

	first, err := f.svc.Login(ctx, "mallory@example.com", testPassword, "ip1", "ua1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Login(ctx, "mallory@example.com", testPassword, "ip2", "ua2"); err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if err := f.svc.Logout(ctx, id, first.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := f.sessions.activeCount(id); n != 1 {
		t.Fatalf("expected 1 active session after logout, got %d", n)
	}
	// Logging out the same token again is a no-op.
	if err := f.svc.Logout(ctx, id, first.Tokens.RefreshToken); err != nil {
		t.Fatalf("repeat Logout: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "nick@example.com")
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Login(ctx, "nick@example.com", testPassword, "ip", "ua"); err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
	}
	if err := f.svc.Logout(ctx, id, ""); err != nil {
		t.Fatalf("Logout all: %v", err)
	}
	if n := f.sessions.activeCount(id); n != 0 {
		t.Fatalf("expected 0 active sessions, got %d", n)
	}
}

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, "olivia@example.com", testPassword, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := f.mailer.lastVerification()
	if err := f.svc.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if err := f.svc.VerifyEmail(ctx, token); !errors.Is(err, ErrInvalidActionToken) {
		t.Fatalf("expected ErrInvalidActionToken on reuse, got %v", err)
	}
}

func TestVerifyEmailRejectsUnknownToken(t *testing.T) {
	f := newAuthFixture(t)
	if err := f.svc.VerifyEmail(context.Background(), "bogus"); !errors.Is(err, ErrInvalidActionToken) {
		t.Fatalf("expected ErrInvalidActionToken, got %v", err)
	}
}

func TestForgotPasswordHidesAccountExistence(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "peggy@example.com")

	if err := f.svc.ForgotPassword(ctx, "peggy@example.com"); err != nil {
		t.Fatalf("ForgotPassword known: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("ForgotPassword unknown must also succeed: %v", err)
	}
	if len(f.mailer.resetTokens) != 1 {
		t.Fatalf("expected exactly 1 reset email, got %d", len(f.mailer.resetTokens))
	}
}

func TestResetPasswordInstallsNewPasswordAndRevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "quinn@example.com")
	if _, err := f.svc.Login(ctx, "quinn@example.com", testPassword, "ip", "ua"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.ForgotPassword(ctx, "quinn@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	const newPassword = "N3w!passw0rd"
	if err := f.svc.ResetPassword(ctx, f.mailer.lastReset(), newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if n := f.sessions.activeCount(id); n != 0 {
		t.Fatalf("reset must revoke all sessions, %d still active", n)
	}
	if _, err := f.svc.Login(ctx, "quinn@example.com", testPassword, "ip", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must be dead, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "quinn@example.com", newPassword, "ip", "ua"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestResetPasswordRejectsWeakReplacement(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "rita@example.com")
	if err := f.svc.ForgotPassword(ctx, "rita@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	err := f.svc.ResetPassword(ctx, f.mailer.lastReset(), "weak")
	var weak *WeakPasswordError
	if !errors.As(err, &weak) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	// The rejection must not burn the token.
	if err := f.svc.ResetPassword(ctx, f.mailer.lastReset(), "N3w!passw0rd"); err != nil {
		t.Fatalf("ResetPassword after weak attempt: %v", err)
	}
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "sam@example.com")

	if err := f.svc.ChangePassword(ctx, id, "Wr0ng!pass", "N3w!passw0rd"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, id, testPassword, "N3w!passw0rd"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Login(ctx, "sam@example.com", "N3w!passw0rd", "ip", "ua"); err != nil {
		t.Fatalf("login with changed password: %v", err)
	}
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "tina@example.com")
	if _, err := f.svc.Login(ctx, "tina@example.com", testPassword, "ip", "ua"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.ChangePassword(ctx, id, testPassword, "N3w!passw0rd"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if n := f.sessions.activeCount(id); n != 0 {
		t.Fatalf("change must revoke sessions, %d still active", n)
	}
}

func TestValidateUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	id := f.registerVerified(t, "uma@example.com")

	pub, err := f.svc.ValidateUser(ctx, id)
	if err != nil {
		t.Fatalf("ValidateUser: %v", err)
	}
	if pub.Email != "uma@example.com" {
		t.Fatalf("unexpected email %q", pub.Email)
	}

	f.users.users[id].Active = false
	if _, err := f.svc.ValidateUser(ctx, id); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive for deactivated, got %v", err)
	}
	if _, err := f.svc.ValidateUser(ctx, 9999); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive for missing, got %v", err)
	}
}

func TestFullCredentialLifecycle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "walt@example.com", testPassword, "Walt")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.svc.VerifyEmail(ctx, f.mailer.lastVerification()); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	login, err := f.svc.Login(ctx, "walt@example.com", testPassword, "ip", "ua")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	rotated, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken, "ip", "ua")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := f.svc.Logout(ctx, res.User.ID, rotated.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := f.sessions.activeCount(res.User.ID); n != 0 {
		t.Fatalf("expected no active sessions at end of lifecycle, got %d", n)
	}
	if _, err := f.svc.Refresh(ctx, rotated.Tokens.RefreshToken, "ip", "ua"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("logged-out token must be dead, got %v", err)
	}
}
