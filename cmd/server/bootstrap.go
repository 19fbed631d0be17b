package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/events"
	"github.com/charlesng35/authcore/internal/mailqueue"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/monitoring/checks"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/internal/store"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
)

const (
	probeTimeout       = 2 * time.Second
	maxPendingMailJobs = 500
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Cache   cache.Store
	Bus     *events.Bus
	Pool    *mailqueue.Pool
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine

	stopBus context.CancelFunc
}

// bootstrapRuntime initialises the database, cache, mail pipeline, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	resolver := iauth.NewTokenResolver(cfg.Auth.ResolverConfig())
	if err := resolver.Validate(); err != nil {
		return nil, fmt.Errorf("token configuration: %w", err)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	codec, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig(resolver))
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	tokenStore, err := store.NewTokenStore(stack.DB)
	if err != nil {
		return nil, err
	}
	userStore, err := store.NewUserStore(stack.DB)
	if err != nil {
		return nil, err
	}

	tokenCfg := cfg.Auth.TokenServiceConfig()
	tokenCfg.Logger = logger.WithModule("tokens")
	tokens, err := iauth.NewTokenService(stack.DB, codec, tokenStore, userStore, tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	queue, err := mailqueue.NewQueue(stack.DB)
	if err != nil {
		return nil, err
	}

	stack.Pool, err = initialiseMailPool(cfg, queue, log)
	if err != nil {
		return nil, err
	}
	stack.Pool.Start(context.Background())

	dispatcher := mailqueue.NewDispatcher(queue, cfg.Mail.RetryPolicy(), logger.WithModule("mail"))
	stack.Bus = events.NewBus(cfg.Events.Buffer, logger.WithModule("events"))
	busCtx, stopBus := context.WithCancel(context.Background())
	stack.stopBus = stopBus
	go stack.Bus.Run(busCtx, events.NewConfirmationListener(dispatcher, logger.WithModule("events")))

	authSvc, err := services.NewAuthService(stack.DB, userStore, tokens, crypto.NewBcryptHasher(cfg.Auth.BcryptCost()), stack.Bus, logger.WithModule("auth"))
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	var redisStore *cache.RedisStore
	if cfg.Cache.Redis.Enabled {
		if redisStore, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(err))
			redisStore = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	if redisStore != nil {
		stack.Cache = redisStore
	} else {
		stack.Cache = cache.NewDatabaseStore(stack.DB)
	}

	health := monitoring.NewHealthManager()
	health.Register(checks.Database(stack.DB, probeTimeout))
	var pinger checks.RedisPinger
	if redisStore != nil {
		pinger = redisStore
	}
	health.Register(checks.Redis(pinger, probeTimeout))
	health.Register(checks.MailQueue(queue, maxPendingMailJobs))

	stack.Cleaner = maintenance.NewCleaner(stack.DB, queue,
		maintenance.WithLogger(logger.WithModule("maintenance")),
		maintenance.WithDeadRetention(cfg.Mail.Queue.DeadRetention),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.RouterDeps{
		Auth:      authSvc,
		Verifier:  codec,
		Health:    health,
		RateStore: middleware.NewCacheRateStore(stack.Cache),
		RateLimit: cfg.RateLimit.RateLimitSettings(),
		Logger:    logger.WithModule("http"),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func initialiseMailPool(cfg *app.Config, queue *mailqueue.Queue, log *zap.Logger) (*mailqueue.Pool, error) {
	if !cfg.Email.SMTP.Enabled {
		log.Warn("smtp delivery disabled; confirmation mails will be retried until smtp is enabled")
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	templates, err := mail.NewTemplateMailer(mailer)
	if err != nil {
		return nil, fmt.Errorf("initialise mail templates: %w", err)
	}

	workerCfg := cfg.Mail.WorkerConfig(cfg.App.URL, cfg.Auth.VerificationExpiryText())
	pool, err := mailqueue.NewPool(queue, templates, workerCfg, logger.WithModule("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise mail workers: %w", err)
	}
	return pool, nil
}

// Shutdown drains the event bus, stops workers and background jobs, and releases resources.
// Buffered events are delivered before the mail workers stop so their jobs are persisted.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}
	var errs error

	if s.Bus != nil {
		s.Bus.Close()
		select {
		case <-s.Bus.Done():
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("drain event bus: %w", ctx.Err()))
		}
	}
	if s.stopBus != nil {
		s.stopBus()
	}

	if s.Pool != nil {
		if err := s.Pool.Stop(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop mail workers: %w", err))
		}
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close cache: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if errs != nil {
		log.Warn("shutdown completed with errors", zap.Error(errs))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.MigrateAndVerify(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
