package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/config"
	"github.com/kunaal-theme/notify/internal/database"
	"github.com/kunaal-theme/notify/internal/middleware"
	"github.com/kunaal-theme/notify/internal/modules/blast"
	notifymod "github.com/kunaal-theme/notify/internal/modules/notify"
	"github.com/kunaal-theme/notify/internal/modules/queue"
	"github.com/kunaal-theme/notify/internal/modules/subscribe"
	"github.com/kunaal-theme/notify/internal/modules/tracking"
	pkgcron "github.com/kunaal-theme/notify/internal/pkg/cron"
	jwtpkg "github.com/kunaal-theme/notify/internal/pkg/jwt"
	"github.com/kunaal-theme/notify/internal/pkg/mail"
	pkgredis "github.com/kunaal-theme/notify/internal/pkg/redis"
	"github.com/kunaal-theme/notify/internal/pkg/signature"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	signer := signature.New(
		cfg.Newsletter.TokenSecret,
		cfg.Newsletter.URLSecret,
		cfg.Site.ServerURL,
	)
	mailer := mail.New(mail.FromApp(cfg.Mail), rc)
	renderer := notifymod.NewRenderer(cfg.Newsletter, cfg.Site.Name)

	subStore := subscribe.NewStore(db)
	queueStore := queue.NewStore(db, cfg.Newsletter.LeaseMinutes)
	sendSched := notifymod.NewScheduler(cfg.Newsletter)
	enq := notifymod.NewEnqueuer(
		cfg.Newsletter, subStore, queueStore, sendSched, signer, renderer,
		logger.Named("enqueuer"),
	)
	worker := queue.NewWorker(
		cfg.Newsletter, queueStore, subStore, mailer, signer,
		logger.Named("worker"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New()
	registerCronJobs(sched, worker, db, cfg, logger.Named("cron"))
	go sched.Start(ctx)

	app := &App{cfg: cfg, router: router, db: db, logger: logger, cancel: cancel, sched: sched}
	app.registerRoutes(rc, &handlers{
		subscribe: subscribe.NewHandler(subStore, signer, mailer, renderer, cfg.Newsletter, logger.Named("subscribe")),
		notify:    notifymod.NewHandler(enq),
		tracking:  tracking.NewHandler(db, signer, logger.Named("tracking")),
		blast: blast.NewHandler(
			enq, sendSched, renderer, queueStore, subStore, mailer, sched,
			cfg.AdminSecret, logger.Named("blast"),
		),
	})

	return app, nil
}

// corsConfig allows everything in dev; in production only configured origin
// patterns pass, with wildcard subdomain and port matching.
func corsConfig(cfg *config.AppConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		c.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		c.AllowOriginFunc = func(origin string) bool { return true }
	}
	return c
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines.
func (a *App) Shutdown() { a.cancel() }
