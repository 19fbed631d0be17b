package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	sharedtestutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/events"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/monitoring/checks"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/internal/store"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	Codec     *iauth.JWTService
	Publisher *RecordingPublisher
}

// EnvOption customises the environment.
type EnvOption func(*envOptions)

type envOptions struct {
	rateLimit middleware.RateLimitConfig
}

// WithRateLimit enables request rate limiting on credential endpoints.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(o *envOptions) {
		o.rateLimit = middleware.RateLimitConfig{Requests: requests, Window: window}
	}
}

// RecordingPublisher captures published events in place of the asynchronous bus.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.UserRegistered
}

func (p *RecordingPublisher) Publish(evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if registered, ok := evt.(events.UserRegistered); ok {
		p.events = append(p.events, registered)
	}
	return nil
}

// ConfirmationToken returns the confirmation token sent for email.
func (p *RecordingPublisher) ConfirmationToken(t *testing.T, email string) string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Email == email {
			return p.events[i].ConfirmationToken
		}
	}
	t.Fatalf("no confirmation published for %s", email)
	return ""
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var options envOptions
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	log := zaptest.NewLogger(t)

	resolver := iauth.NewTokenResolver(iauth.ResolverConfig{
		Access:  iauth.TokenSettings{Secret: "test-suite-access-secret", TTL: 15 * time.Minute},
		Refresh: iauth.TokenSettings{Secret: "test-suite-refresh-secret", TTL: 7 * 24 * time.Hour},
	})
	codec, err := iauth.NewJWTService(iauth.JWTConfig{Resolver: resolver, Issuer: "test-suite"})
	require.NoError(t, err)

	tokenStore, err := store.NewTokenStore(db)
	require.NoError(t, err)
	userStore, err := store.NewUserStore(db)
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(db, codec, tokenStore, userStore, iauth.TokenServiceConfig{Logger: log})
	require.NoError(t, err)

	publisher := &RecordingPublisher{}
	authSvc, err := services.NewAuthService(db, userStore, tokens, crypto.NewBcryptHasher(bcrypt.MinCost), publisher, log)
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	health.Register(checks.Database(db, time.Second))

	router, err := api.NewRouter(api.RouterDeps{
		Auth:      authSvc,
		Verifier:  codec,
		Health:    health,
		RateStore: middleware.NewCacheRateStore(cache.NewDatabaseStore(db)),
		RateLimit: options.rateLimit,
		Logger:    log,
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		Codec:     codec,
		Publisher: publisher,
	}
}

// TokenPair mirrors the login response payload.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterAndConfirm creates a verified account through the public endpoints.
func (e *Env) RegisterAndConfirm(name, email, password string) {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	token := e.Publisher.ConfirmationToken(e.T, email)
	w = e.Request(http.MethodGet, "/api/auth/confirm-mail/"+token, nil, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// Login signs in and returns the issued token pair.
func (e *Env) Login(email, password string) TokenPair {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var pair TokenPair
	require.NoError(e.T, json.Unmarshal(w.Body.Bytes(), &pair))
	require.NotEmpty(e.T, pair.AccessToken)
	require.NotEmpty(e.T, pair.RefreshToken)
	return pair
}

// DecodeError parses the error envelope from a recorder.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorInfo {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	return *resp.Error
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
