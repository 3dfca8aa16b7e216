package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/onterapia/teleconsulta/internal/config"
	"github.com/onterapia/teleconsulta/internal/domain/anamnesis"
	"github.com/onterapia/teleconsulta/internal/domain/declaration"
	"github.com/onterapia/teleconsulta/internal/domain/gate"
	"github.com/onterapia/teleconsulta/internal/domain/handoff"
	"github.com/onterapia/teleconsulta/internal/domain/reminder"
	"github.com/onterapia/teleconsulta/internal/domain/session"
	"github.com/onterapia/teleconsulta/internal/platform/auth"
	"github.com/onterapia/teleconsulta/internal/platform/blobstore"
	"github.com/onterapia/teleconsulta/internal/platform/chatbot"
	"github.com/onterapia/teleconsulta/internal/platform/clock"
	"github.com/onterapia/teleconsulta/internal/platform/db"
	"github.com/onterapia/teleconsulta/internal/platform/emotion"
	"github.com/onterapia/teleconsulta/internal/platform/llm"
	"github.com/onterapia/teleconsulta/internal/platform/middleware"
	"github.com/onterapia/teleconsulta/internal/platform/notification"
	"github.com/onterapia/teleconsulta/internal/platform/websocket"
	"github.com/onterapia/teleconsulta/internal/platform/whatsapp"
	"github.com/onterapia/teleconsulta/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "teleconsulta-server",
		Short: "OnTerapia teleconsultation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(roomCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "teleconsulta",
	})
}

func migrator(pool *pgxpool.Pool, dir string) *db.Migrator {
	if dir != "" {
		return db.NewDirMigrator(pool, dir)
	}
	return db.NewMigrator(pool, migrations.FS)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator(pool, dir).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// roomCmd prints a freshly generated session, handy for testing a
// conference host without the apps.
func roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Generate a session room name and join link",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _ := cmd.Flags().GetString("base-url")
			suffix, _ := cmd.Flags().GetInt("suffix")
			if suffix < 0 || suffix > 32 {
				return fmt.Errorf("--suffix must be between 0 and 32")
			}
			s := session.NewGenerator(clock.SystemClock{}, base, session.WithRandomSuffix(suffix)).Generate()
			fmt.Fprintf(cmd.OutOrStdout(), "label: %s\nroom:  %s\nurl:   %s\n", s.Label, s.RoomName, s.JoinURL)
			return nil
		},
	}
	cmd.Flags().String("base-url", "https://meet.jit.si", "Conference host")
	cmd.Flags().Int("suffix", 0, "Random hex characters appended to the room name")
	return cmd
}

// redisPinger adapts *redis.Client to db.Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// handoffStore is the mailbox picked by HANDOFF_BACKEND plus whatever it
// needs closed and health-checked.
type handoffStore struct {
	mailbox handoff.Mailbox
	health  db.Pinger
	close   func()
}

func openMailbox(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*handoffStore, error) {
	switch cfg.HandoffBackend {
	case config.HandoffPostgres:
		return &handoffStore{mailbox: handoff.NewPGMailbox(pool), close: func() {}}, nil
	case config.HandoffRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		return &handoffStore{
			mailbox: handoff.NewRedisMailbox(client, 0),
			health:  redisPinger{client: client},
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn().Err(err).Msg("closing redis client")
				}
			},
		}, nil
	case config.HandoffSQLite:
		mb, err := handoff.OpenSQLiteMailbox(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &handoffStore{
			mailbox: mb,
			close: func() {
				if err := mb.Close(); err != nil {
					logger.Warn().Err(err).Msg("closing sqlite mailbox")
				}
			},
		}, nil
	case config.HandoffMemory:
		logger.Warn().Msg("HANDOFF_BACKEND=memory, pending sessions are lost on restart")
		return &handoffStore{mailbox: handoff.NewMemoryMailbox(), close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown handoff backend %q", cfg.HandoffBackend)
	}
}

// deps are the stateful collaborators of the API. Tests supply in-memory
// versions.
type deps struct {
	clock    clock.Clock
	db       db.Pinger
	dbStats  func() *db.PoolStats
	handoff  *handoffStore
	consents gate.ConsentRepository
	blobs    blobstore.Store
	bot      anamnesis.Bot
	emotions emotion.Analyzer
}

// server is the assembled API. Close stops the reminder timers.
type server struct {
	echo      *echo.Echo
	hub       *websocket.Hub
	reminders *reminder.LocalRegistrar
}

func (s *server) Close() {
	s.reminders.Close()
}

func newServer(cfg *config.Config, logger zerolog.Logger, d deps) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.db != nil {
		e.GET("/health/db", db.HealthHandler(d.db, d.dbStats))
	}
	if d.handoff.health != nil {
		e.GET("/health/handoff", db.HealthHandler(d.handoff.health, nil))
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Realtime
	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	templates := notification.NewTemplateEngine()
	notifier := notification.NewManager(notification.NewHubPushSender(hub), logger)
	notification.NewHandler(notifier).RegisterRoutes(apiV1)

	// Session handoff
	handoffSvc := handoff.NewService(d.handoff.mailbox, hub, templates, logger)
	handoff.NewHandler(handoffSvc).RegisterRoutes(apiV1)

	// Session creation
	gen := session.NewGenerator(d.clock, cfg.ConferenceBaseURL, session.WithRandomSuffix(cfg.RoomSuffixLen))
	sessionSvc := session.NewService(gen, handoffSvc, templates, logger)
	session.NewHandler(sessionSvc).RegisterRoutes(apiV1)

	// Permission and consent gate
	gateSvc := gate.NewService(d.consents, gate.DefaultTerms(), hub, logger)
	gate.NewHandler(gateSvc).RegisterRoutes(apiV1)

	// Reminders
	registrar := reminder.NewLocalRegistrar(d.clock, notifier, logger)
	scheduler := reminder.NewScheduler(d.clock, registrar, templates, cfg.ReminderLead, logger)
	reminder.NewHandler(scheduler, registrar).RegisterRoutes(apiV1)

	// Anamnesis
	messenger := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneID, cfg.WhatsAppToken)
	summarizer := llm.NewSummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	anamnesisSvc := anamnesis.NewService(d.bot, messenger, summarizer, logger)
	anamnesis.NewHandler(anamnesisSvc).RegisterRoutes(apiV1)

	// Declarations
	declarationSvc := declaration.NewService(declaration.DefaultCatalog(), d.blobs, logger)
	declaration.NewHandler(declarationSvc).RegisterRoutes(apiV1)

	// Session evolution
	emotion.NewHandler(d.emotions, logger).RegisterRoutes(apiV1)

	return &server{echo: e, hub: hub, reminders: registrar}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	hs, err := openMailbox(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open handoff mailbox")
	}
	defer hs.close()
	logger.Info().Str("backend", cfg.HandoffBackend).Msg("handoff mailbox ready")

	if !cfg.WhatsAppEnabled() {
		logger.Warn().Msg("WhatsApp delivery is not configured, anamnesis codes must be shared manually")
	}

	srv := newServer(cfg, logger, deps{
		clock:    clock.SystemClock{},
		db:       pool,
		dbStats:  func() *db.PoolStats { return db.GetPoolStats(pool) },
		handoff:  hs,
		consents: gate.NewConsentRepoPG(pool),
		blobs:    blobstore.NewPGStore(pool),
		bot:      chatbot.NewClient(cfg.ChatbotURL),
		emotions: emotion.NewClient(cfg.EmotionURL),
	})
	defer srv.Close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Int("ws_clients", srv.hub.ClientCount()).Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
