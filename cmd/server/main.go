package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"mcpflow/backend/internal/api"
	"mcpflow/backend/internal/auth"
	"mcpflow/backend/internal/capability"
	"mcpflow/backend/internal/config"
	"mcpflow/backend/internal/engine"
	"mcpflow/backend/internal/logging"
	"mcpflow/backend/internal/mcp"
	"mcpflow/backend/internal/repository"
	"mcpflow/backend/internal/services"
	"mcpflow/backend/internal/tls"
)

func main() {
	ctx := context.Background()

	logger := logging.NewLogger()

	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}
	logger.Info("Configuration loaded",
		"okta_client_id", cfg.Auth.ClientID,
		"okta_domain", cfg.Auth.OktaDomain,
		"config_file", viper.ConfigFileUsed(),
	)

	logger.Info("Starting workflow engine service")

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	store := repository.NewPostgresStore(dbPool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		log.Fatalf("Schema initialization failed: %v", err)
	}

	// Capabilities injected into the engine
	tools := capability.NewMCPToolCaller(store, logger)
	defer tools.Close()
	llm := capability.NewOpenAIGenerator(cfg.LLM.APIKey, cfg.LLM.Model)

	eng := engine.New(tools, llm, logger)
	workflowService := services.NewWorkflowService(store, eng, logger)

	logger.Info("Service layer initialized")

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("mcpflow"))

	authz, err := auth.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		log.Fatalf("auth initialization failed: %v", err)
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	// REST API under /api/v1 behind the auth middleware
	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiServer := api.NewServer(workflowService)
	api.RegisterRoutes(apiGroup, apiServer)
	e.GET("/health", apiServer.HandleHealth)

	logger.Info("REST API handlers mounted")

	// MCP tool surface runs as a configured principal
	mcpPrincipal, err := auth.ProvisionPrincipal(ctx, store, cfg.MCP.PrincipalEmail)
	if err != nil {
		logger.Error("failed to provision MCP principal", "error", err)
		log.Fatalf("MCP principal provisioning failed: %v", err)
	}
	mcpServer := mcp.NewServer(workflowService, mcpPrincipal)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec (with runtime substitution) and Swagger UI
	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	addr := ":8080"
	if cfg.TLS.Enable {
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
