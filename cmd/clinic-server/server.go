package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/config"
	"github.com/clinic/scheduler/internal/domain/patient"
	"github.com/clinic/scheduler/internal/domain/scheduling"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/metrics"
	"github.com/clinic/scheduler/internal/platform/middleware"
	"github.com/clinic/scheduler/internal/platform/validation"
)

type server struct {
	echo       *echo.Echo
	pool       *pgxpool.Pool
	scheduling *scheduling.Service
	patients   *patient.Service
}

func (s *server) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type storage struct {
	appointments scheduling.AppointmentRepository
	doctors      scheduling.DoctorRepository
	tx           scheduling.Transactor
	patients     patient.Repository
	pinger       db.Pinger
	pool         *pgxpool.Pool
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if !cfg.UsesPostgres() {
		mem := scheduling.NewMemoryStore()
		return &storage{
			appointments: mem,
			doctors:      mem.Doctors(),
			tx:           mem,
			patients:     patient.NewMemoryRepo(),
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return &storage{
		appointments: scheduling.NewAppointmentRepoPG(pool),
		doctors:      scheduling.NewDoctorRepoPG(pool),
		tx:           db.NewTxManager(pool),
		patients:     patient.NewRepoPG(pool),
		pinger:       pool,
		pool:         pool,
	}, nil
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if st.pool != nil {
		logger.Info().Msg("connected to database")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("clinic", reg)
	}

	patientSvc := patient.NewService(st.patients)
	patientSvc.SetLogger(logger.With().Str("component", "patient").Logger())

	schedSvc := scheduling.NewService(st.appointments, st.doctors, st.patients, st.tx,
		scheduling.DefaultPolicy(loc), scheduling.NewGate(cfg.BookingCooldown))
	schedSvc.SetLogger(logger.With().Str("component", "scheduling").Logger())
	schedSvc.SetMetrics(m)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Retry-After", middleware.RequestIDHeader},
	}))
	if m != nil {
		e.Use(m.Middleware())
		e.GET("/metrics", metrics.Handler(reg))
	}

	backend := cfg.StorageBackend
	e.GET("/health", db.HealthHandler(backend, st.pinger))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1", authMW, middleware.RateLimit(rl), middleware.RequestTimeout(cfg.RequestTimeout))
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	return &server{echo: e, pool: st.pool, scheduling: schedSvc, patients: patientSvc}, nil
}
