package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoswagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/stackpoint/account-service/docs"
	"github.com/stackpoint/account-service/internal/api/handler"
	"github.com/stackpoint/account-service/internal/api/middleware"
	"github.com/stackpoint/account-service/internal/core/domain"
	"github.com/stackpoint/account-service/internal/core/ports"
	"github.com/stackpoint/account-service/internal/core/service"
	mongodb "github.com/stackpoint/account-service/internal/infrastructure/db/mongo"
	redisdb "github.com/stackpoint/account-service/internal/infrastructure/db/redis"
	"github.com/stackpoint/account-service/internal/pkg/config"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(db *mongo.Database, rdb *redis.Client, cfg *config.Config, audit ports.AuditRecorder, mailer ports.Mailer, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echoprometheus.NewMiddleware("accounts"))

	// --- Repositories ---
	accountRepo := mongodb.NewAccountRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	stateRepo := mongodb.NewExternalStateRepository(db)
	loginRepo := mongodb.NewExternalLoginRepository(db)
	roleRepo := mongodb.NewRoleRepository(db)
	challenges := redisdb.NewChallengeStore(rdb)
	lockouts := redisdb.NewLockoutStore(rdb)

	// --- Services ---
	tokenService := service.NewTokenService(
		tokenRepo, accountRepo,
		cfg.JWT.Secret, cfg.JWT.Issuer,
		cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, cfg.JWT.PersistentTTL,
	)
	authService := service.NewAuthService(
		accountRepo, tokenService, challenges, lockouts, audit,
		int64(cfg.Lockout.MaxFailures), cfg.Lockout.Duration,
	)
	externalService := service.NewExternalAuthService(
		buildProviders(cfg.OAuth), cfg.OAuth.AllowedRedirectHosts,
		stateRepo, loginRepo, accountRepo, tokenService, audit,
	)
	adminService := service.NewAdminService(accountRepo, roleRepo, tokenService, mailer, audit, log)

	cookies := handler.CookieSettings{
		Enabled:    cfg.Cookie.Enabled,
		Domain:     cfg.Cookie.Domain,
		Secure:     cfg.Cookie.Secure,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.PersistentTTL,
	}

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(authService, accountRepo, cookies)
	externalHandler := handler.NewExternalHandler(externalService, cookies)
	adminHandler := handler.NewAdminHandler(adminService)

	requireAuth := middleware.Auth(tokenService, accountRepo)
	optionalAuth := middleware.OptionalAuth(tokenService, accountRepo)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/login/2fa", authHandler.CompleteTwoFactor)
	auth.POST("/login/recovery", authHandler.CompleteTwoFactorRecovery)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout, requireAuth)
	auth.GET("/me", authHandler.Me, requireAuth)
	auth.POST("/password/change", authHandler.ChangePassword, requireAuth)
	auth.POST("/password/set", authHandler.SetPassword, requireAuth)

	// --- External provider routes ---
	external := e.Group("/auth/external")
	external.GET("/providers", externalHandler.Providers)
	external.POST("/:provider/challenge", externalHandler.CreateChallenge, optionalAuth)
	external.GET("/:provider/callback", externalHandler.HandleCallback, optionalAuth)
	external.DELETE("/:provider", externalHandler.Unlink, requireAuth)

	// --- Admin routes ---
	admin := e.Group("/admin", requireAuth, middleware.RequireRank(domain.RankAdmin))
	admin.POST("/accounts/:id/roles", adminHandler.AssignRole)
	admin.DELETE("/accounts/:id/roles/:role", adminHandler.RemoveRole)
	admin.POST("/accounts/:id/lock", adminHandler.LockAccount)
	admin.POST("/accounts/:id/unlock", adminHandler.UnlockAccount)
	admin.DELETE("/accounts/:id", adminHandler.DeleteAccount)
	admin.POST("/accounts/:id/password-reset", adminHandler.SendPasswordReset)
	admin.POST("/accounts/:id/verify-email", adminHandler.VerifyEmail)

	// --- Operational endpoints ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(db, rdb)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoswagger.WrapHandler)

	return e
}

// buildProviders registers each provider that has credentials configured.
func buildProviders(cfg config.OAuthConfig) []service.Provider {
	client := &http.Client{Timeout: 10 * time.Second}
	var providers []service.Provider
	if cfg.Google.ClientID != "" {
		providers = append(providers, service.NewGoogleProvider(service.ProviderConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURL,
		}, client))
	}
	if cfg.GitHub.ClientID != "" {
		providers = append(providers, service.NewGitHubProvider(service.ProviderConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURI:  cfg.GitHub.RedirectURL,
		}, client))
	}
	return providers
}
