package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"stresstest-server/auth"
	"stresstest-server/confs"
	"stresstest-server/db"
	"stresstest-server/entities"
	"stresstest-server/handlers"
	httpHandler "stresstest-server/handlers/http"
	"stresstest-server/logs"
	"stresstest-server/middleware"
	"stresstest-server/repositories"
	"stresstest-server/services"
	"stresstest-server/usecases"
	"stresstest-server/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	app       *gin.Engine
	cfg       *confs.Config
	db        db.Database
	processor *services.ReadingProcessor
	cleanup   []func()
}

// NewServer wires repositories, use cases and routes. A nil database selects
// the in-memory repositories.
func NewServer(cfg *confs.Config, database db.Database) (*Server, error) {
	s := &Server{
		app: gin.New(),
		cfg: cfg,
		db:  database,
	}
	s.app.Use(middleware.Recoverer(), middleware.RequestID(), middleware.Logger())

	// Setup CORS middleware
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"}
	corsCfg.ExposeHeaders = []string{"X-Request-Id"}
	s.app.Use(cors.New(corsCfg))

	// Initialize repositories
	var (
		testRepo    repositories.DeviceTestRepository
		readingRepo repositories.BatteryReadingRepository
		userRepo    repositories.UserRepository
	)
	if database == nil {
		testRepo = repositories.NewMemoryDeviceTestRepository()
		readingRepo = repositories.NewMemoryBatteryReadingRepository()
		userRepo = repositories.NewMemoryUserRepository()
	} else {
		testRepo = repositories.NewDeviceTestPgRepository(database)
		readingRepo = repositories.NewBatteryReadingPgRepository(database)
		userRepo = repositories.NewUserPgRepository(database)
	}

	// Initialize use cases
	testUseCase := usecases.NewDeviceTestUseCase(testRepo, entities.NewValidator(cfg.Tests.Versions))
	telemetryUseCase := usecases.NewTelemetryUseCase(readingRepo, testUseCase)
	s.processor = services.NewReadingProcessor(telemetryUseCase, cfg.Telemetry.BatteryThreshold, cfg.Telemetry.FlushInterval)

	verifier, issuer, err := s.setupAuth()
	if err != nil {
		return nil, err
	}
	authService := auth.NewService(userRepo, issuer)
	if cfg.Auth.AdminUser != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		created, err := authService.EnsureUser(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword)
		cancel()
		if err != nil {
			return nil, err
		}
		if created {
			logs.Logger.Infof("seeded admin user %q", cfg.Auth.AdminUser)
		}
	}

	// Initialize handlers
	manager := ws.NewManager()
	testHandler := httpHandler.NewDeviceTestHandler(testUseCase, telemetryUseCase, manager)
	loginHandler := httpHandler.NewLoginHandler(authService)
	wsHandler := handlers.NewWSHandler(manager, testUseCase, s.processor)
	cacheHandler := handlers.NewCacheHandler(s.processor)

	s.app.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	s.app.GET("/ready", s.ready)

	requireUser := middleware.RequireUser(verifier)

	api := s.app.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", loginHandler.Login)
			authGroup.GET("/me", requireUser, loginHandler.Me)
		}

		protected := api.Group("", requireUser)

		tests := protected.Group("/device-tests")
		{
			tests.POST("", testHandler.CreateDeviceTest)
			tests.GET("", testHandler.ListDeviceTests)
			tests.GET("/stats", testHandler.GetStats)
			tests.GET("/:id", testHandler.GetDeviceTest)
			tests.PUT("/:id", testHandler.UpdateDeviceTest)
			tests.DELETE("/:id", testHandler.DeleteDeviceTest)
			tests.POST("/:id/start", testHandler.StartDeviceTest)
			tests.POST("/:id/complete", testHandler.CompleteDeviceTest)
			tests.POST("/:id/fail", testHandler.FailDeviceTest)
			tests.GET("/:id/readings", testHandler.GetReadings)
		}

		protected.GET("/versions", testHandler.GetVersions)
		protected.GET("/devices/connected", wsHandler.GetConnectedDevices)

		// Cache management endpoints
		cacheGroup := protected.Group("/cache")
		{
			cacheGroup.POST("/process", cacheHandler.ProcessCache)
			cacheGroup.GET("/data", cacheHandler.GetAllCachedData)
			cacheGroup.GET("/stats", cacheHandler.GetCacheStats)
		}
	}

	s.app.GET("/ws", middleware.RequireUserWS(verifier), wsHandler.HandleTelemetryWS)

	return s, nil
}

// setupAuth builds the token verifier and, when a shared secret is set, the
// issuer for local logins.
func (s *Server) setupAuth() (auth.Verifier, *auth.Issuer, error) {
	a := s.cfg.Auth
	var (
		verifiers []auth.Verifier
		issuer    *auth.Issuer
	)
	if a.JWTSecret != "" {
		issuer = auth.NewIssuer(a.JWTSecret, a.Issuer, a.Audience, a.TokenTTL)
		verifiers = append(verifiers, auth.NewHMACVerifier(a.JWTSecret, a.Issuer, a.Audience))
	}
	if a.JWKSURL != "" {
		v, cleanup, err := auth.NewJWKSVerifier(a.JWKSURL, "", a.Audience)
		if err != nil {
			return nil, nil, err
		}
		s.cleanup = append(s.cleanup, cleanup)
		verifiers = append(verifiers, v)
	}
	if len(verifiers) == 0 {
		return nil, nil, errors.New("no token verifier configured")
	}
	return auth.Chain(verifiers...), issuer, nil
}

func (s *Server) ready(c *gin.Context) {
	if p, ok := s.db.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// flushes the reading cache.
func (s *Server) Start(ctx context.Context) error {
	defer func() {
		for _, fn := range s.cleanup {
			fn()
		}
	}()

	procCtx, stopProcessor := context.WithCancel(context.Background())
	flushed := s.processor.Start(procCtx)
	defer func() {
		stopProcessor()
		<-flushed
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Server.Address, s.cfg.Server.Port),
		Handler:           s.app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Logger.Infof("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logs.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
