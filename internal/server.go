package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/config"
	"github.com/2beens/notesapp/internal/middleware"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/objectstore"
	"github.com/2beens/notesapp/internal/telemetry/metrics"
	"github.com/2beens/notesapp/internal/telemetry/tracing"
	"github.com/2beens/notesapp/internal/web"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

const (
	sessionsCleanupInterval = 8 * time.Hour
	viewsCleanupInterval    = 10 * time.Minute
	viewsMaxIdle            = time.Hour

	// room for the multipart framing and the text fields next to the file
	requestBodyOverhead = 1 << 20
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config      *config.Config
	stores      *stores
	redisClient *redis.Client
	authService *auth.Service
	identity    auth.Provider
	rateLimiter middleware.RequestRateLimiter
	views       *web.Views

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	RedisPassword           string
	PostgresPassword        string
	LinkSecret              string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "notesapp", rdb)
	if err != nil {
		return nil, err
	}

	appStores, err := newStores(ctx, storeParams{
		config:           params.Config,
		postgresPassword: params.PostgresPassword,
		linkSecret:       params.LinkSecret,
		tracingEnabled:   params.HoneycombTracingEnabled,
	})
	if err != nil {
		otelShutdown()
		return nil, fmt.Errorf("setup stores: %w", err)
	}

	promRegistry := metrics.SetupPrometheus(appStores.collectors...)
	metricsManager := metrics.NewManager("notesapp", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	sessionTTL, err := params.Config.SessionTTLDuration()
	if err != nil {
		return nil, err
	}
	authService := auth.NewAuthService(params.Config.Accounts, sessionTTL, rdb)
	if len(params.Config.Accounts) == 0 {
		log.Warnln("no accounts configured, nobody will be able to sign in")
	}

	s := &Server{
		config:      params.Config,
		stores:      appStores,
		redisClient: rdb,
		authService: authService,
		identity:    authService,
		rateLimiter: redis_rate.NewLimiter(rdb),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}
	s.views = web.NewViews(s.newView, metricsManager)

	return s, nil
}

func (s *Server) newView(session *auth.Session) *notes.View {
	return notes.NewView(session, s.stores.noteStore, s.stores.objectStore, s.metricsManager)
}

func (s *Server) routerSetup() (*mux.Router, error) {
	sessionTTL, err := s.config.SessionTTLDuration()
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	loginLimiter := middleware.RateLimit(
		s.rateLimiter,
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	)

	webHandler := web.NewHandler(
		s.identity,
		s.views,
		s.config.MaxUploadBytes(),
		sessionTTL,
		strings.HasPrefix(s.config.PublicBaseURL, "https://"),
	)
	webHandler.SetupRoutes(r, loginLimiter, middleware.Cors(s.config.AllowedOrigins))

	if s.stores.diskStore != nil {
		objectsHandler := objectstore.NewHandler(s.stores.diskStore, s.stores.linkSigner)
		objectsHandler.SetupRoutes(r)
	}

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "DELETE", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.identity)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.LimitRequestBody(s.config.MaxUploadBytes() + requestBodyOverhead))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) metricsRouterSetup() *mux.Router {
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	return metricsRouter
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}

	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: s.metricsRouterSetup(),
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	go s.runCleanup(ctx, sessionsCleanupInterval, viewsCleanupInterval)

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// runCleanup drops expired sessions and the views nobody used for a while, until ctx is done.
func (s *Server) runCleanup(ctx context.Context, sessionsInterval, viewsInterval time.Duration) {
	sessionsTicker := time.NewTicker(sessionsInterval)
	defer sessionsTicker.Stop()
	viewsTicker := time.NewTicker(viewsInterval)
	defer viewsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugln("cleanup loop stopped")
			return
		case <-sessionsTicker.C:
			if s.authService != nil {
				s.authService.ScanAndClean(ctx)
			}
		case <-viewsTicker.C:
			if dropped := s.views.DropIdle(viewsMaxIdle); dropped > 0 {
				log.Debugf("dropped %d idle notes views", dropped)
			}
		}
	}
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	s.stores.close()

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}
