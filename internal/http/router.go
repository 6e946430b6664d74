package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/cache"
	"github.com/taskhub/taskhub/internal/config"
	"github.com/taskhub/taskhub/internal/http/handlers"
	"github.com/taskhub/taskhub/internal/http/middlewares"
	"github.com/taskhub/taskhub/internal/observability"
	"github.com/taskhub/taskhub/internal/redisclient"
	"github.com/taskhub/taskhub/internal/repo/postgres"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, rdb *redisclient.Client, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// metrics registry first so the middleware chain can observe everything
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	}

	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	if cfg.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("taskhub"))
	}

	r.Use(prom.GinHandleMiddleware())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	tokensRepo := postgres.NewTokensRepo(pool, prom)
	tasksRepo := postgres.NewTasksRepo(pool, prom)

	manager := auth.NewManager(cfg.TokenSecret)

	// short TTL: users have no profile-edit surface, revocation is not cached
	userCache := cache.New(30 * time.Second)

	authMw := middlewares.NewAuthMiddleware(tokensRepo, usersRepo, manager, userCache)
	throttle := middlewares.NewThrottle(cfg.ThrottleLimit, cfg.ThrottleWindow, rdb)

	authHandler := handlers.NewAuthHandler(usersRepo, tokensRepo, manager, cfg)
	tasksHandler := handlers.NewTasksHandler(tasksRepo)

	v1 := r.Group("/api/v1")

	v1.POST("/register", throttle.Limit(), authHandler.Register)
	v1.POST("/login", throttle.Limit(), authHandler.Login)

	protected := v1.Group("", authMw.RequireAuth())

	protected.POST("/logout", authHandler.Logout)
	protected.GET("/user", authHandler.CurrentUser)

	protected.GET("/tasks", tasksHandler.ListTasks)
	protected.POST("/tasks", tasksHandler.CreateTask)
	protected.GET("/tasks/:id", tasksHandler.GetTaskByID)
	protected.PUT("/tasks/:id", tasksHandler.UpdateTask)
	protected.PATCH("/tasks/:id", tasksHandler.UpdateTask)
	protected.PATCH("/tasks/:id/toggle-complete", tasksHandler.ToggleComplete)
	protected.DELETE("/tasks/:id", tasksHandler.DeleteTask)

	return r
}
