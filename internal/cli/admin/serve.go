package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/fathom-labs/corpus/internal/api/handlers"
	"github.com/fathom-labs/corpus/internal/config"
	"github.com/fathom-labs/corpus/internal/database"
	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/graph"
	"github.com/fathom-labs/corpus/internal/jobs"
	"github.com/fathom-labs/corpus/internal/openai"
	"github.com/fathom-labs/corpus/internal/repository"
	"github.com/fathom-labs/corpus/internal/server"
	"github.com/fathom-labs/corpus/internal/service"
	"github.com/fathom-labs/corpus/internal/storage"
	"github.com/fathom-labs/corpus/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the corpus API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required: ingestion and search need an embedding provider")
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	sourceRepo := repository.NewSourceRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	grantRepo := repository.NewShareGrantRepository(pool)
	msTokenRepo := repository.NewMSTokenRepository(pool)

	embedder := openai.NewClient(cfg.OpenAIAPIKey)

	origins := make(map[domain.SourceType]service.FileOrigin)
	var originAuth handlers.OriginAuthenticator = &noOpOriginAuthenticator{}

	if cfg.HasMicrosoft() {
		authenticator := graph.NewAuthenticator(graph.AuthConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			TenantID:     cfg.MicrosoftTenantID,
			RedirectURI:  cfg.MicrosoftRedirectURI,
		}, msTokenRepo)
		origins[domain.SourceTypeOneDrive] = &oneDriveOrigin{client: graph.NewClient(authenticator)}
		originAuth = authenticator
		log.Println("OneDrive origin enabled")
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		origins[domain.SourceTypeS3] = &s3Origin{client: s3Client}
		log.Printf("S3 origin enabled (bucket %s)", cfg.S3Bucket)
	}

	if len(origins) == 0 {
		log.Println("warning: no file origins configured; source creation will fail")
	}

	accessSvc := service.NewAccessService(sourceRepo, grantRepo, userRepo)
	authSvc := service.NewAuthService(userRepo)
	sourceSvc := service.NewSourceService(sourceRepo, chunkRepo, userRepo, accessSvc, embedder, origins)
	searchSvc := service.NewSearchService(sourceRepo, chunkRepo, accessSvc, embedder)

	routerCfg := server.RouterConfig{
		TokenValidator: authSvc,
		SourceHandler:  handlers.NewSourceHandler(sourceSvc, accessSvc, chunkRepo),
		SearchHandler:  handlers.NewSearchHandler(searchSvc),
		AuthHandler:    handlers.NewAuthHandler(authSvc, originAuth),
	}

	router := server.NewRouter(routerCfg)

	var refreshWorker *jobs.Worker
	if cfg.RefreshEnabled() {
		refresher := jobs.NewSourceRefresher(sourceRepo, sourceSvc, cfg.RefreshAfter)
		refreshWorker = jobs.NewWorker(refresher, cfg.RefreshInterval)
		go refreshWorker.Start(ctx)
		log.Printf("refresh worker started (interval %v, max age %v)", cfg.RefreshInterval, cfg.RefreshAfter)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if refreshWorker != nil {
		refreshWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// oneDriveOrigin adapts the Graph client to the FileOrigin interface.
type oneDriveOrigin struct {
	client *graph.Client
}

func (o *oneDriveOrigin) ListFiles(ctx context.Context, userEmail, rootPath string) ([]domain.RemoteFile, error) {
	return o.client.ListFilesRecursive(ctx, userEmail, rootPath)
}

func (o *oneDriveOrigin) DownloadFile(ctx context.Context, userEmail, fileID string) ([]byte, error) {
	return o.client.DownloadFile(ctx, userEmail, fileID)
}

// s3Origin adapts the S3 client to the FileOrigin interface. S3 access
// uses the server's credentials, so the user email is ignored.
type s3Origin struct {
	client *storage.S3Client
}

func (o *s3Origin) ListFiles(ctx context.Context, userEmail, rootPath string) ([]domain.RemoteFile, error) {
	return o.client.ListFiles(ctx, rootPath)
}

func (o *s3Origin) DownloadFile(ctx context.Context, userEmail, fileID string) ([]byte, error) {
	return o.client.DownloadFile(ctx, fileID)
}

type noOpOriginAuthenticator struct{}

func (a *noOpOriginAuthenticator) AuthURL(userEmail string) string {
	return ""
}

func (a *noOpOriginAuthenticator) ExchangeCode(ctx context.Context, userEmail, code string) error {
	return fmt.Errorf("microsoft OAuth not configured: MS_CLIENT_ID, MS_CLIENT_SECRET, and MS_REDIRECT_URI required")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
