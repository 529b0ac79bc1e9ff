// Package api wires together all HTTP routes for the kpiflow backend.
//
// Route grouping philosophy:
//   - Sign-in and invitation acceptance are reachable without a session,
//     behind the stricter auth rate budget.
//   - Everything under a workspace path runs the full validation pipeline:
//     method, session, membership, role, permission, rate limit, schema.
//     Routes declare requirements through middleware.RouteSpec; the ordering
//     lives in the pipeline, not here.
//   - The billing webhook authenticates by HMAC signature, outside the
//     session pipeline.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/kpiflow/kpiflow/internal/api/handlers"
	"github.com/kpiflow/kpiflow/internal/audit"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/auth/oidc"
	"github.com/kpiflow/kpiflow/internal/config"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/invitations"
	"github.com/kpiflow/kpiflow/internal/jobs"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
	"github.com/kpiflow/kpiflow/internal/session"
)

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) invokes Shutdown after
// the HTTP server has drained in-flight requests.
type BackgroundServices struct {
	invitationCleanup *jobs.InvitationCleanupJob
	sessionCleanup    *jobs.SessionCleanupJob
	memoryLimiter     *middleware.FixedWindowLimiter
	shipper           audit.Shipper
}

// Shutdown stops all background goroutines and closes audit destinations.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.invitationCleanup != nil {
		bg.invitationCleanup.Stop()
	}
	if bg.sessionCleanup != nil {
		bg.sessionCleanup.Stop()
	}
	if bg.memoryLimiter != nil {
		bg.memoryLimiter.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router with every collaborator
// wired: repositories, session manager, invitation manager, quota enforcer,
// audit logger, rate limiter, and the cleanup jobs.
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	logger := slog.Default()

	sqlxDB := sqlx.NewDb(database, "postgres")

	userRepo := repositories.NewUserRepository(database)
	sessionRepo := repositories.NewSessionRepository(database)
	membershipRepo := repositories.NewMembershipRepository(database)
	workspaceRepo := repositories.NewWorkspaceRepository(database)
	kpiRepo := repositories.NewKPIRepository(database)
	auditRepo := repositories.NewAuditRepository(database)
	billingRepo := repositories.NewBillingRepository(sqlxDB)
	invitationRepo := repositories.NewInvitationRepository(sqlxDB)

	sessionBuilder := session.NewBuilder(membershipRepo, logger)
	sessionManager := session.NewManager(sessionBuilder, sessionRepo, cfg.Auth.SessionTTL, logger)

	invitationManager := invitations.NewManager(invitationRepo, membershipRepo, logger)
	invitationManager.SetTTL(cfg.Auth.InvitationTTL)

	quotaEnforcer := quota.NewEnforcer(billingRepo, logger)

	// Identity provider. Sign-in endpoints stay registered without it so the
	// error surface is uniform, they just report that sign-in is unavailable.
	var provider handlers.IdentityProvider
	if cfg.Auth.OIDC.Enabled {
		p, err := oidc.NewProvider(&cfg.Auth.OIDC)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize identity provider: %w", err)
		}
		provider = p
	} else {
		logger.Warn("identity provider is not configured, sign-in is disabled")
	}

	// Audit chain: bounded in-memory ring, optional durable store, optional
	// external shippers.
	capacity := cfg.Audit.RecorderCapacity
	if capacity <= 0 {
		capacity = audit.DefaultCapacity
	}
	recorder := audit.NewRecorder(capacity)

	shipper, err := buildShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}

	var auditStore audit.Store
	var historyStore *repositories.AuditRepository
	if cfg.Audit.Persist {
		auditStore = auditRepo
		historyStore = auditRepo
	}
	auditLogger := audit.NewLogger(recorder, auditStore, shipper, logger)

	// Rate limiter backend. The in-process fixed window serves a single
	// replica; Redis shares budgets across replicas.
	var limiter middleware.RateLimiter
	var memoryLimiter *middleware.FixedWindowLimiter
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		limiter = middleware.NewRedisLimiter(client)
	default:
		memoryLimiter = middleware.NewFixedWindowLimiter()
		limiter = memoryLimiter
	}

	pipe := middleware.NewPipeline(sessionManager, membershipRepo, limiter)
	pipe.SetDefaultRate(middleware.RateLimitConfig{
		Requests: cfg.RateLimit.RequestsPerMinute,
		Window:   cfg.RateLimit.Window,
	})
	authRate := &middleware.RateLimitConfig{
		Requests: cfg.RateLimit.AuthPerMinute,
		Window:   cfg.RateLimit.Window,
	}

	authHandlers := handlers.NewAuthHandlers(provider, userRepo, workspaceRepo, membershipRepo, billingRepo, sessionManager, invitationManager, logger)
	workspaceHandlers := handlers.NewWorkspaceHandlers(workspaceRepo, membershipRepo, billingRepo, quotaEnforcer, logger)
	memberHandlers := handlers.NewMemberHandlers(membershipRepo, logger)
	invitationHandlers := handlers.NewInvitationHandlers(invitationManager, invitationRepo, logger)
	kpiHandlers := handlers.NewKPIHandlers(kpiRepo, workspaceRepo, billingRepo, quotaEnforcer, logger)
	billingHandlers := handlers.NewBillingHandlers(billingRepo, workspaceRepo, cfg.Billing.WebhookSecret, logger)
	auditHandlers := handlers.NewAuditHandlers(recorder, historyStore, logger)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.AuditMiddleware(auditLogger))

	router.HandleMethodNotAllowed = true
	router.NoMethod(middleware.MethodNotAllowedHandler())

	router.GET("/health", healthCheckHandler(database))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints, stricter rate budget.
		apiV1.GET("/auth/sign-in", route(pipe.Public(middleware.RouteSpec{
			Methods:   []string{http.MethodGet},
			RateLimit: authRate,
		}), authHandlers.SignInURL())...)
		apiV1.POST("/auth/callback", route(pipe.Public(middleware.RouteSpec{
			Methods:   []string{http.MethodPost},
			RateLimit: authRate,
			Schema: &middleware.Schema{
				Body: map[string]middleware.Field{
					"code": {Required: true, Type: middleware.FieldString, MaxLength: 2048},
				},
			},
		}), authHandlers.Callback())...)

		// Authenticated, not workspace-scoped.
		apiV1.POST("/auth/sign-out", route(pipe.Chain(middleware.RouteSpec{
			Methods: []string{http.MethodPost},
		}), authHandlers.SignOut())...)
		apiV1.GET("/auth/me", route(pipe.Chain(middleware.RouteSpec{
			Methods: []string{http.MethodGet},
		}), authHandlers.Me())...)

		apiV1.POST("/invitations/accept", route(pipe.Chain(middleware.RouteSpec{
			Methods:   []string{http.MethodPost},
			RateLimit: authRate,
			Schema: &middleware.Schema{
				Body: map[string]middleware.Field{
					"token": {Required: true, Type: middleware.FieldString, MaxLength: 256},
				},
			},
		}), invitationHandlers.Accept())...)

		apiV1.POST("/workspaces", route(pipe.Chain(middleware.RouteSpec{
			Methods: []string{http.MethodPost},
			Schema: &middleware.Schema{
				Body: map[string]middleware.Field{
					"name": {Required: true, Type: middleware.FieldString, MaxLength: 120},
					"slug": {Required: true, Type: middleware.FieldString, MaxLength: 63},
				},
			},
		}), workspaceHandlers.Create())...)
		apiV1.GET("/workspaces", route(pipe.Chain(middleware.RouteSpec{
			Methods: []string{http.MethodGet},
		}), workspaceHandlers.List())...)

		// Workspace-scoped routes. The :workspaceID segment is validated
		// against a live membership row on every request.
		ws := apiV1.Group("/workspaces/:" + middleware.WorkspaceParam)
		{
			ws.GET("", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
			}), workspaceHandlers.Get())...)
			ws.DELETE("", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodDelete},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermManageWorkspace},
			}), workspaceHandlers.Delete())...)

			ws.GET("/members", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
			}), memberHandlers.List())...)
			ws.PUT("/members/:userID", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodPut},
				WorkspaceScoped: true,
				MinimumRole:     auth.RoleAdmin,
				Permissions:     []auth.Permission{auth.PermRemoveMember},
				Schema: &middleware.Schema{
					Body: map[string]middleware.Field{
						"role": {Required: true, Type: middleware.FieldString, OneOf: []string{"ADMIN", "MEMBER"}},
					},
				},
			}), memberHandlers.UpdateRole())...)
			ws.DELETE("/members/:userID", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodDelete},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermRemoveMember},
			}), memberHandlers.Remove())...)

			ws.POST("/invitations", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodPost},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermInviteMember},
				Schema: &middleware.Schema{
					Body: map[string]middleware.Field{
						"email": {Required: true, Type: middleware.FieldEmail, MaxLength: 254},
						"role":  {Required: true, Type: middleware.FieldString, OneOf: []string{"ADMIN", "MEMBER"}},
					},
				},
			}), invitationHandlers.Create())...)
			ws.GET("/invitations", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermInviteMember},
			}), invitationHandlers.List())...)
			ws.DELETE("/invitations/:id", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodDelete},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermInviteMember},
			}), invitationHandlers.Revoke())...)

			ws.GET("/kpis", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermViewKPI},
			}), kpiHandlers.ListKPIs())...)
			ws.POST("/kpis", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodPost},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermCreateKPI},
				Schema: &middleware.Schema{
					Body: map[string]middleware.Field{
						"name":         {Required: true, Type: middleware.FieldString, MaxLength: 120},
						"target":       {Type: middleware.FieldNumber},
						"current":      {Type: middleware.FieldNumber},
						"unit":         {Type: middleware.FieldString, MaxLength: 32},
						"objective_id": {Type: middleware.FieldUUID},
					},
				},
			}), kpiHandlers.CreateKPI())...)
			ws.GET("/kpis/:id", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermViewKPI},
			}), kpiHandlers.GetKPI())...)
			ws.PUT("/kpis/:id", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodPut},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermEditKPI},
			}), kpiHandlers.UpdateKPI())...)
			ws.DELETE("/kpis/:id", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodDelete},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermDeleteKPI},
			}), kpiHandlers.DeleteKPI())...)

			ws.GET("/objectives", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermViewObjective},
			}), kpiHandlers.ListObjectives())...)
			ws.POST("/objectives", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodPost},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermCreateObjective},
				Schema: &middleware.Schema{
					Body: map[string]middleware.Field{
						"title":       {Required: true, Type: middleware.FieldString, MaxLength: 120},
						"description": {Type: middleware.FieldString, MaxLength: 2000},
					},
				},
			}), kpiHandlers.CreateObjective())...)
			ws.DELETE("/objectives/:id", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodDelete},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermDeleteObjective},
			}), kpiHandlers.DeleteObjective())...)

			ws.GET("/billing/subscription", route(pipe.Chain(middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermManageBilling},
			}), billingHandlers.GetSubscription())...)

			auditSpec := middleware.RouteSpec{
				Methods:         []string{http.MethodGet},
				WorkspaceScoped: true,
				Permissions:     []auth.Permission{auth.PermViewAuditLog},
			}
			ws.GET("/audit/recent", route(pipe.Chain(auditSpec), auditHandlers.Recent())...)
			ws.GET("/audit/failed", route(pipe.Chain(auditSpec), auditHandlers.Failed())...)
			ws.GET("/audit/suspicious", route(pipe.Chain(auditSpec), auditHandlers.Suspicious())...)
			ws.GET("/audit/history", route(pipe.Chain(auditSpec), auditHandlers.History())...)
		}
	}

	// Billing webhook, authenticated by HMAC signature.
	router.POST("/webhooks/billing", billingHandlers.Webhook())

	invitationCleanup := jobs.NewInvitationCleanupJob(invitationManager, cfg.Jobs.InvitationCleanupInterval, logger)
	invitationCleanup.Start(context.Background())
	sessionCleanup := jobs.NewSessionCleanupJob(sessionRepo, cfg.Jobs.SessionCleanupInterval, logger)
	sessionCleanup.Start(context.Background())

	bg := &BackgroundServices{
		invitationCleanup: invitationCleanup,
		sessionCleanup:    sessionCleanup,
		memoryLimiter:     memoryLimiter,
		shipper:           shipper,
	}

	return router, bg, nil
}

// route flattens a pipeline chain plus the terminal handler into the variadic
// list gin expects.
func route(chain []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	return append(chain, handler)
}

// buildShipper constructs the audit shipper fan-out, creating an S3 client
// only when a destination needs one.
func buildShipper(configs []audit.ShipperConfig) (audit.Shipper, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	var s3Client *s3.Client
	for _, sc := range configs {
		if sc.Enabled && sc.Type == "s3" {
			var opts []func(*awsconfig.LoadOptions) error
			if sc.S3 != nil {
				if sc.S3.Region != "" {
					opts = append(opts, awsconfig.WithRegion(sc.S3.Region))
				}
				if sc.S3.AccessKeyID != "" && sc.S3.SecretAccessKey != "" {
					opts = append(opts, awsconfig.WithCredentialsProvider(
						credentials.NewStaticCredentialsProvider(sc.S3.AccessKeyID, sc.S3.SecretAccessKey, "")))
				}
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
			}
			s3Client = s3.NewFromConfig(awsCfg)
			break
		}
	}

	return audit.NewMultiShipper(configs, s3Client)
}

// healthCheckHandler returns the health status of the service, including
// database connectivity.
func healthCheckHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the configured origins.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
