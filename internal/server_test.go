package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/notestore"
	"github.com/2beens/notesapp/internal/objectstore"
	"github.com/2beens/notesapp/internal/telemetry/metrics"
	"github.com/2beens/notesapp/internal/web"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLimiter struct {
	allowed bool
}

func (l *fakeLimiter) Allow(_ context.Context, _ string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	if l.allowed {
		return &redis_rate.Result{Allowed: 1, Remaining: 1}, nil
	}
	return &redis_rate.Result{Allowed: 0, RetryAfter: 30 * time.Second}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:                 "development",
		PublicBaseURL:               "http://localhost:8080",
		MaxUploadMB:                 1,
		AllowedOrigins:              []string{"http://localhost:3000"},
		LoginRateLimitAllowedPerMin: 5,
		NoteStore:                   config.NoteStoreMemory,
		ObjectStore:                 config.ObjectStoreDisk,
		DiskRootPath:                t.TempDir(),
		DisplayURLTTL:               "5m",
	}
}

func newTestServer(t *testing.T, limiterAllows bool) (*Server, *auth.MockProvider) {
	t.Helper()
	cfg := testConfig(t)

	appStores, err := newStores(context.Background(), storeParams{
		config:     cfg,
		linkSecret: "test-link-secret",
	})
	require.NoError(t, err)

	provider := auth.NewMockProvider(gomock.NewController(t))
	metricsManager, promRegistry := metrics.NewTestManagerAndRegistry()

	s := &Server{
		config:         cfg,
		stores:         appStores,
		identity:       provider,
		rateLimiter:    &fakeLimiter{allowed: limiterAllows},
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   func() {},
	}
	s.views = web.NewViews(s.newView, metricsManager)

	return s, provider
}

func TestNewStores(t *testing.T) {
	cfg := testConfig(t)

	appStores, err := newStores(context.Background(), storeParams{
		config:     cfg,
		linkSecret: "test-link-secret",
	})
	require.NoError(t, err)
	defer appStores.close()

	assert.IsType(t, &notestore.MemoryStore{}, appStores.noteStore)
	assert.IsType(t, &objectstore.DiskStore{}, appStores.objectStore)
	assert.NotNil(t, appStores.diskStore)
	assert.NotNil(t, appStores.linkSigner)
	assert.Nil(t, appStores.dbPool)
	assert.Empty(t, appStores.collectors)
}

func TestNewStores_DiskWithoutLinkSecret(t *testing.T) {
	_, err := newStores(context.Background(), storeParams{
		config: testConfig(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link secret")
}

func TestNewStores_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.NoteStore = "mongo"

	_, err := newStores(context.Background(), storeParams{
		config:     cfg,
		linkSecret: "test-link-secret",
	})
	require.Error(t, err)
}

func TestServer_routerSetup(t *testing.T) {
	s, provider := newTestServer(t, true)
	session := &auth.Session{
		Token:   "token-serj",
		Owner:   "serj",
		Profile: auth.Profile{Email: "serj@example.com", Handle: "serj"},
	}
	provider.EXPECT().CurrentUser(gomock.Any(), "token-serj").Return(session, nil).AnyTimes()

	router, err := s.routerSetup()
	require.NoError(t, err)

	for _, tc := range []struct {
		name         string
		method       string
		path         string
		signedIn     bool
		origin       string
		wantStatus   int
		wantLocation string
		wantBody     string
	}{
		{
			name:       "login page is public",
			method:     "GET",
			path:       "/login",
			wantStatus: http.StatusOK,
			wantBody:   "Sign in",
		},
		{
			name:         "index redirects to login",
			method:       "GET",
			path:         "/",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/login",
		},
		{
			name:       "api needs a session",
			method:     "GET",
			path:       "/api/notes",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "index signed in",
			method:     "GET",
			path:       "/",
			signedIn:   true,
			wantStatus: http.StatusOK,
			wantBody:   "Hello, serj@example.com",
		},
		{
			name:       "api signed in",
			method:     "GET",
			path:       "/api/notes",
			signedIn:   true,
			wantStatus: http.StatusOK,
			wantBody:   `"total":0`,
		},
		{
			name:       "api from an unknown origin",
			method:     "GET",
			path:       "/api/notes",
			signedIn:   true,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "object link with a bad token",
			method:     "GET",
			path:       "/objects/not-a-token",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown path",
			method:     "GET",
			path:       "/whatever",
			signedIn:   true,
			wantStatus: http.StatusNotFound,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.signedIn {
				req.AddCookie(&http.Cookie{Name: "notesapp_session", Value: "token-serj"})
			}
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantLocation != "" {
				assert.Equal(t, tc.wantLocation, rr.Header().Get("Location"))
			}
			if tc.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestServer_routerSetup_LoginRateLimited(t *testing.T) {
	s, _ := newTestServer(t, false)
	router, err := s.routerSetup()
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/login", strings.NewReader("handle=serj&password=pass"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))
}

func TestServer_metricsRouterSetup(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.metricsManager.CounterNotesCreated.Inc()

	rr := httptest.NewRecorder()
	s.metricsRouterSetup().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "notesapp_test_server_notes_created 1")
}

func TestServer_runCleanup_StopsWithContext(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.views.Get(&auth.Session{Token: "t1", Owner: "serj"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.runCleanup(ctx, time.Hour, time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	// used just now, so not idle yet
	assert.Equal(t, 1, s.views.Len())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestServer_GracefulShutdown_NotServing(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.metricsManager.GaugeLifeSignal.Set(1)

	s.GracefulShutdown()

	assert.Equal(t, 0.0, testutil.ToFloat64(s.metricsManager.GaugeLifeSignal))
}
