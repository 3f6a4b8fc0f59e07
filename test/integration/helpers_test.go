package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/http/handler"
	"github.com/sprintdeck/sprintdeck/internal/http/router"
	"github.com/sprintdeck/sprintdeck/internal/repository"
	"github.com/sprintdeck/sprintdeck/internal/security"
	"github.com/sprintdeck/sprintdeck/internal/service"
)

var integrationDBSeq atomic.Int64

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// testMailer collects emailed secrets so flows can be completed in-test.
type testMailer struct {
	mu                 sync.Mutex
	verificationTokens []string
	resetTokens        []string
}

func (m *testMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verificationTokens = append(m.verificationTokens, token)
	return nil
}

func (m *testMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens = append(m.resetTokens, token)
	return nil
}

func (m *testMailer) lastVerification(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.verificationTokens) == 0 {
		t.Fatal("no verification email captured")
	}
	return m.verificationTokens[len(m.verificationTokens)-1]
}

// newAuthTestServer boots the full HTTP stack over in-memory sqlite.
func newAuthTestServer(t *testing.T) (string, *testMailer, func()) {
	t.Helper()
	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", integrationDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Role{}, &domain.Session{}, &domain.LoginAttempt{}, &domain.ActionToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	codec := security.NewTokenCodec("sprintdeck-integration", "integration-access-secret", "integration-refresh-secret", 15*time.Minute, time.Hour)
	mailer := &testMailer{}
	auth := service.NewAuthService(service.AuthServiceDeps{
		Users:        repository.NewUserRepository(db),
		Sessions:     repository.NewSessionRepository(db),
		Attempts:     repository.NewLoginAttemptRepository(db),
		ActionTokens: repository.NewActionTokenRepository(db),
		Hasher:       security.NewPasswordHasher(16),
		Codec:        codec,
		Lockout:      service.LockoutPolicy{MaxAttempts: 3, LockoutDuration: 30 * time.Minute},
		Mailer:       mailer,
	})

	srv := httptest.NewServer(router.NewRouter(router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth),
		UserHandler:        handler.NewUserHandler(auth, service.NewSessionService(repository.NewSessionRepository(db))),
		TokenCodec:         codec,
		APIRateLimitRPM:    10000,
		AuthRateLimitRPM:   10000,
		ForgotRateLimitRPM: 10000,
	}))
	return srv.URL, mailer, srv.Close
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

// registerAndLogin drives the register/verify/login flow and returns the
// token pair.
func registerAndLogin(t *testing.T, baseURL string, mailer *testMailer, email, password string) (access, refresh string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/register", map[string]string{
		"email": email, "password": password, "name": "Integration",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/verify-email", map[string]string{
		"token": mailer.lastVerification(t),
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-email: status %d", resp.StatusCode)
	}
	return login(t, baseURL, email, password)
}

func login(t *testing.T, baseURL, email, password string) (access, refresh string) {
	t.Helper()
	resp, env := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var data struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	return data.Tokens.AccessToken, data.Tokens.RefreshToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
