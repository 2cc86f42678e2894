package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/cache"
	"github.com/ardhptr21/myits-lapor/internal/config"
	"github.com/ardhptr21/myits-lapor/internal/jobs"
	"github.com/ardhptr21/myits-lapor/internal/middleware"
	"github.com/ardhptr21/myits-lapor/internal/models"
	"github.com/ardhptr21/myits-lapor/internal/repository"
	"github.com/ardhptr21/myits-lapor/internal/response"
	"github.com/ardhptr21/myits-lapor/internal/security"
	"github.com/ardhptr21/myits-lapor/internal/service"
	"github.com/ardhptr21/myits-lapor/internal/storage"
	"github.com/ardhptr21/myits-lapor/internal/upload"
)

type healthCheck struct {
	name string
	ping func(ctx context.Context) error
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	reportService *service.ReportService
	receiver      *upload.Receiver
	store         storage.FileStore
	layout        storage.Layout
	tokens        middleware.TokenParser
	users         middleware.UserLookup
	limiter       *middleware.FixedWindowLimiter
	checks        []healthCheck
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, rdb *redis.Client, store storage.FileStore, cfg *config.AppConfig) (HandlerSet, error) {
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	tokens := security.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTTTL)
	layout := storage.NewLayout(cfg.Storage.PublicPrefix)
	receiver := upload.NewReceiver(store, layout, cfg.Upload, log)
	cleanup := jobs.NewQueue(rdb, cfg.Cleanup.Stream)

	limiter, err := middleware.NewFixedWindowLimiter(rdb, cache.Key("ratelimit"), cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if err != nil {
		return HandlerSet{}, fmt.Errorf("rate limiter: %w", err)
	}

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		authService:   service.NewAuthService(userRepo, tokens, log),
		reportService: service.NewReportService(reportRepo, progressRepo, receiver, cleanup, log),
		receiver:      receiver,
		store:         store,
		layout:        layout,
		tokens:        tokens,
		users:         userRepo,
		limiter:       limiter,
		checks: []healthCheck{
			{name: "database", ping: db.Ping},
			{name: "cache", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
	}, nil
}

func (h HandlerSet) Routes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/"+h.layout.Root+"/*filepath", h.ServeUpload)

	auth := router.Group("/auth")
	auth.POST("/register", h.rateLimit("register"), h.RegisterUser)
	auth.POST("/login", h.rateLimit("login"), h.Login)
	auth.GET("/me", middleware.Auth(h.tokens, h.users), h.Me)

	asUser := middleware.RequireRole(models.RoleUser)
	asAdmin := middleware.RequireRole(models.RoleAdmin)

	reports := router.Group("/reports", middleware.Auth(h.tokens, h.users))
	reports.POST("", asUser, h.CreateReport)
	reports.GET("", h.ListReports)
	reports.GET("/me", asUser, h.ListMyReports)
	reports.GET("/:id", h.GetReport)
	reports.PUT("/:id", asUser, h.UpdateReport)
	reports.DELETE("/:id", asAdmin, h.DeleteReport)
	reports.PATCH("/:id/toggle-status", asAdmin, h.ToggleStatus)
	reports.POST("/:id/progress", asAdmin, h.AddProgress)

	router.NoRoute(h.NotFound)
}

func (h HandlerSet) rateLimit(scope string) gin.HandlerFunc {
	if h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(h.limiter, scope)
}

func (h HandlerSet) NotFound(c *gin.Context) {
	response.Abort(c, http.StatusNotFound, "Not found")
}

// currentUser is only called behind Auth, which guarantees the value.
func currentUser(c *gin.Context) models.User {
	user, _ := middleware.CurrentUser(c)
	return user
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}
