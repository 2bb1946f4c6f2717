package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"tangled.org/creel.social/creel/internal/database/boltstore"
	"tangled.org/creel.social/creel/internal/database/sqlitestore"
	"tangled.org/creel.social/creel/internal/email"
	"tangled.org/creel.social/creel/internal/handlers"
	"tangled.org/creel.social/creel/internal/metrics"
	"tangled.org/creel.social/creel/internal/notify"
	"tangled.org/creel.social/creel/internal/ratelimit"
	"tangled.org/creel.social/creel/internal/realtime"
	"tangled.org/creel.social/creel/internal/routing"
	"tangled.org/creel.social/creel/internal/tracing"
	"tangled.org/creel.social/creel/internal/trust"
)

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting Creel trust service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get port from env or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "18920"
	}

	dataDir := os.Getenv("CREEL_DATA_DIR")
	if dataDir == "" {
		// Default to XDG data directory or home directory for development
		dataDir = os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to get home directory")
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		dataDir = filepath.Join(dataDir, "creel")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", dataDir).Msg("Failed to create data directory")
	}

	// Tracing is best-effort: a missing collector must not stop the service.
	if tp, err := tracing.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	// SQLite holds the relational moderation data
	dbPath := os.Getenv("CREEL_DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "trust.db")
	}
	store, err := sqlitestore.Open(ctx, dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open database")
	}
	defer store.Close()
	log.Info().Str("path", dbPath).Msg("Database opened")

	// BoltDB holds the rate-limit windows and the action dedupe keys
	windowsPath := os.Getenv("CREEL_WINDOWS_PATH")
	if windowsPath == "" {
		windowsPath = filepath.Join(dataDir, "windows.db")
	}
	windows, err := boltstore.Open(boltstore.Options{Path: windowsPath})
	if err != nil {
		log.Fatal().Err(err).Str("path", windowsPath).Msg("Failed to open rate-limit store")
	}
	defer windows.Close()
	log.Info().Str("path", windowsPath).Msg("Rate-limit store opened")

	// Staff roles and permissions, hot-reloadable via SIGHUP
	staffConfigPath := os.Getenv("MODERATORS_CONFIG")
	access, err := trust.NewAccess(staffConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", staffConfigPath).Msg("Failed to load staff config")
	}
	go reloadOnSIGHUP(ctx, access)

	limiter := ratelimit.NewLimiter(windows.WindowStore(), ratelimit.DefaultRules())
	ratelimit.StartSweeper(ctx, windows.WindowStore(), 10*time.Minute)

	hub := realtime.NewHub()
	notifications := store.NotificationStore()

	var sink notify.Sink = notifications
	if smtpHost := os.Getenv("SMTP_HOST"); smtpHost != "" {
		smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
		if smtpPort == 0 {
			smtpPort = 587
		}
		sender := email.NewSender(email.Config{
			Host:      smtpHost,
			Port:      smtpPort,
			User:      os.Getenv("SMTP_USER"),
			Pass:      os.Getenv("SMTP_PASS"),
			From:      os.Getenv("SMTP_FROM"),
			StaffAddr: os.Getenv("STAFF_EMAIL"),
		})
		sink = notify.Fanout{notifications, email.NewAlertSink(sender)}
		log.Info().Str("host", smtpHost).Msg("Escalation email enabled")
	}
	dispatcher := notify.NewDispatcher(sink)

	executor := trust.NewExecutor(store, access, windows.DedupeStore(), dispatcher, hub)
	takedown := trust.NewTakedown(store, access, dispatcher, hub)
	audit := trust.NewAudit(store, access)
	status := trust.NewStatusService(store)
	triage := trust.NewTriage(store, access, status, executor, takedown, hub)

	metrics.StartCollector(ctx, metrics.StatsSource{
		OpenReportCount: func() int {
			count, err := store.CountOpenReports(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count open reports")
				return 0
			}
			return count
		},
		UsersByStatus: func() map[string]int {
			counts, err := store.CountByStatus(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to count users by status")
				return nil
			}
			out := make(map[string]int, len(counts))
			for status, count := range counts {
				out[string(status)] = count
			}
			return out
		},
		SubscriberCount: hub.SubscriberCount,
	}, 30*time.Second)

	h := handlers.NewHandler(access, executor, takedown, audit, triage, status, limiter)
	h.SetNotifications(notifications)
	h.SetHub(hub)

	handler := routing.SetupRouter(routing.Config{
		Handlers: h,
		Logger:   log.Logger,
	})
	handler = otelhttp.NewHandler(handler, "creel-trust")

	server := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("address", server.Addr).
		Str("database", dbPath).
		Bool("moderation_enabled", access.IsEnabled()).
		Msg("Starting HTTP server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// reloadOnSIGHUP re-reads the staff config when the process receives SIGHUP.
func reloadOnSIGHUP(ctx context.Context, access *trust.Access) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := access.Reload(); err != nil {
				log.Error().Err(err).Msg("Staff config reload failed")
			} else {
				log.Info().Msg("Staff config reloaded")
			}
		}
	}
}
