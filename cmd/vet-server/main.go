package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/equivet/equivet/internal/config"
	"github.com/equivet/equivet/internal/domain/billing"
	"github.com/equivet/equivet/internal/domain/clinical"
	"github.com/equivet/equivet/internal/domain/consultation"
	"github.com/equivet/equivet/internal/domain/dashboard"
	"github.com/equivet/equivet/internal/domain/identity"
	"github.com/equivet/equivet/internal/domain/patient"
	"github.com/equivet/equivet/internal/domain/scheduling"
	"github.com/equivet/equivet/internal/gestation"
	"github.com/equivet/equivet/internal/platform/auth"
	"github.com/equivet/equivet/internal/platform/blobstore"
	"github.com/equivet/equivet/internal/platform/db"
	"github.com/equivet/equivet/internal/platform/events"
	"github.com/equivet/equivet/internal/platform/middleware"
)

const (
	filesPrefix    = "/public/files"
	requestTimeout = 30 * time.Second
	// Image uploads are capped at 5 MiB; the rest is multipart overhead.
	bodyLimit = "6M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vet-server",
		Short: "Equine veterinary clinic API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads the configuration and connects to the database.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// targetSchemas resolves the --tenant/--all flags to schema names.
func targetSchemas(ctx context.Context, pool *pgxpool.Pool, tenant string, all bool) ([]string, error) {
	if !all {
		if !db.ValidTenantID(tenant) {
			return nil, fmt.Errorf("invalid tenant identifier: %q", tenant)
		}
		return []string{db.SchemaName(tenant)}, nil
	}
	tenants, err := db.TenantSchemas(ctx, pool)
	if err != nil {
		return nil, err
	}
	schemas := make([]string, 0, len(tenants))
	for _, t := range tenants {
		schemas = append(schemas, db.SchemaName(t))
	}
	return schemas, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			all, _ := cmd.Flags().GetBool("all")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			schemas, err := targetSchemas(ctx, pool, tenant, all)
			if err != nil {
				return err
			}
			migrator := db.NewMigrator(pool, dir)
			for _, schema := range schemas {
				count, err := migrator.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration of %s failed: %w", schema, err)
				}
				fmt.Printf("%s: applied %d migration(s)\n", schema, count)
			}
			return nil
		},
	}
	upCmd.Flags().String("tenant", "default", "Tenant whose schema is migrated")
	upCmd.Flags().Bool("all", false, "Migrate every tenant schema")
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			schemas, err := targetSchemas(ctx, pool, tenant, false)
			if err != nil {
				return err
			}
			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schemas[0])
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schemas[0])
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("tenant", "default", "Tenant whose schema is inspected")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic schema and apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			clinicName, _ := cmd.Flags().GetString("clinic-name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: %s\n", db.SchemaName(name))
			if err := db.CreateTenantSchema(ctx, pool, name, cfg.MigrationsDir); err != nil {
				return err
			}
			if clinicName != "" {
				svc := identity.NewService(identity.NewClinicRepoPG(pool), identity.NewUserRepoPG(pool), nil, nil, nil, zerolog.Nop())
				err := db.WithTenant(ctx, pool, name, func(ctx context.Context) error {
					return svc.UpdateClinic(ctx, &identity.ClinicProfile{Name: clinicName})
				})
				if err != nil {
					return fmt.Errorf("set clinic profile: %w", err)
				}
			}
			fmt.Println("Tenant created successfully. Add a first admin with: vet-server user create --tenant", name)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("clinic-name", "", "Display name of the clinic")

	cmd.AddCommand(createCmd)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage clinic staff",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff user",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("EQUIVET_USER_PASSWORD")
			}

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewClinicRepoPG(pool), identity.NewUserRepoPG(pool), nil, nil, nil, zerolog.Nop())
			u := &identity.User{Email: email, Name: name, Role: role}
			err = db.WithTenant(ctx, pool, tenant, func(ctx context.Context) error {
				return svc.CreateUser(ctx, u, password)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s %s (%s) in %s\n", u.Role, u.Email, u.ID, db.SchemaName(tenant))
			return nil
		},
	}
	createCmd.Flags().String("tenant", "default", "Tenant the user belongs to")
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("role", auth.RoleVet, "admin, vet or assistant")
	createCmd.Flags().String("password", "", "Password (or EQUIVET_USER_PASSWORD)")

	cmd.AddCommand(createCmd)
	return cmd
}

// resolveJWTSecret returns the configured secret or, in development auth
// mode without one, a random secret. The second value reports generation.
func resolveJWTSecret(cfg *config.Config) (string, bool, error) {
	if cfg.JWTSecret != "" || cfg.ResolvedAuthMode() != "development" {
		return cfg.JWTSecret, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return "", false, fmt.Errorf("failed to generate random JWT secret: %w", err)
	}
	return hex.EncodeToString(key), true, nil
}

// deps are the external resources the HTTP server runs on.
type deps struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	store  blobstore.BlobStore
	events events.Publisher
	tokens *auth.TokenManager
	loc    *time.Location
	logger zerolog.Logger
}

// newServer builds the echo instance with every route mounted. Nothing here
// touches the database until a request is served.
func newServer(d deps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	// Rate limit keys use the peer address; X-Forwarded-For is not trusted.
	e.IPExtractor = echo.ExtractIPDirect()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(d.tokens, cfg.DefaultTenant, auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{Tokens: d.tokens, Skipper: auth.AuthSkipper}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	rateLimit := middleware.RateLimit(rateLimitCfg)
	tenant := db.TenantMiddleware(d.pool, cfg.DefaultTenant)

	apiV1 := e.Group("/api/v1", rateLimit, tenant)
	public := e.Group("/public", rateLimit, tenant)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": "0.1.0"})
	})
	e.GET("/health/db", db.HealthHandler(d.pool))

	clock := func() time.Time { return time.Now().In(d.loc) }
	calc := gestation.NewCalculator(clock)
	images := blobstore.NewImages(d.store, filesPrefix)
	e.GET(filesPrefix+"/*", images.Handler(), rateLimit)

	// Identity
	identitySvc := identity.NewService(identity.NewClinicRepoPG(d.pool), identity.NewUserRepoPG(d.pool),
		d.tokens, images, clock, logger)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterLogin(e, tenant, rateLimit)
	identityHandler.RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepoPG(d.pool), calc, images, d.events, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Medical history and preventive medicine
	clinicalSvc := clinical.NewService(clinical.NewMedicalRecordRepoPG(d.pool), clinical.NewPreventiveRepoPG(d.pool),
		patientSvc, images, clock, logger)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(apiV1)

	// Appointments
	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(d.pool), patientSvc, d.events, clock, logger)
	scheduling.NewHandler(schedulingSvc, d.loc).RegisterRoutes(apiV1)

	// Billing
	taxRate := cfg.TaxRate
	billingSvc := billing.NewService(billing.NewInvoiceRepoPG(d.pool), billing.NewPaymentLinkRepoPG(d.pool),
		patientSvc, taxRate, cfg.PublicBaseURL, d.events, clock, logger)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Dashboard
	dashboardSvc := dashboard.NewService(patientSvc, billingSvc, schedulingSvc, calc, logger)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)

	// Public consultation
	consultSvc := consultation.NewService(identitySvc, patientSvc, clinicalSvc, calc, cfg.PublicBaseURL, logger)
	consultHandler := consultation.NewHandler(consultSvc)
	consultHandler.RegisterRoutes(apiV1)
	consultHandler.RegisterPublicRoutes(public)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, _ := cfg.Location()

	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; tokens issued now will not survive a restart")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Image storage
	var store blobstore.BlobStore
	if cfg.BlobStoreEnabled() {
		minioStore, err := blobstore.NewMinioBlobStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to blob store")
		}
		store = minioStore
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("using MinIO blob store")
	} else {
		store = blobstore.NewInMemoryBlobStore()
		logger.Warn().Msg("MINIO_* not set; images are kept in memory")
	}

	// Domain events
	var pub events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer amqpPub.Close()
		pub = amqpPub
		logger.Info().Str("exchange", events.ExchangeName).Msg("publishing domain events")
	}

	e := newServer(deps{
		cfg:    cfg,
		pool:   pool,
		store:  store,
		events: pub,
		tokens: auth.NewTokenManager(secret, cfg.JWTTTL),
		loc:    loc,
		logger: logger,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
