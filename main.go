package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/raine/tradefeed/internal/alert"
	"github.com/raine/tradefeed/internal/config"
	"github.com/raine/tradefeed/internal/connection"
	"github.com/raine/tradefeed/internal/housekeeping"
	"github.com/raine/tradefeed/internal/ingest"
	"github.com/raine/tradefeed/internal/listing"
	"github.com/raine/tradefeed/internal/llm"
	"github.com/raine/tradefeed/internal/media"
	"github.com/raine/tradefeed/internal/objectstore"
	"github.com/raine/tradefeed/internal/storage"
	"github.com/raine/tradefeed/internal/transport"
	"github.com/raine/tradefeed/internal/whatsapp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "tradefeed.log"

// sessionEvents routes transport events: lifecycle events go to the
// connection manager, messages go to the ingestion queue.
type sessionEvents struct {
	*connection.Manager
	queue *ingest.Queue
}

func (e *sessionEvents) HandleMessage(msg *transport.InboundMessage) {
	if err := e.queue.Enqueue(msg); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to enqueue message")
	}
}

func main() {
	os.Exit(run())
}

// run wires and runs the service and returns the process exit code. Deferred
// cleanup completes before main exits.
func run() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	closeLog := setupLogging(cfg.LogLevel)
	defer closeLog()

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize store")
		return 1
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DatabasePath).Msg("store initialized")

	var notifier alert.Notifier = alert.LogNotifier{}
	if cfg.AlertsEnabled() {
		tg, err := alert.NewTelegramNotifier(cfg.BotToken, cfg.AdminID)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize operator alerts")
			return 1
		}
		notifier = tg
	}

	extractor, err := newExtractor(ctx, cfg, store)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize extractor")
		return 1
	}

	uploader, err := objectstore.NewS3Uploader(ctx, objectstore.Options{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Endpoint:        cfg.S3Endpoint,
		PublicBaseURL:   cfg.S3PublicBaseURL,
		KeyPrefix:       cfg.S3KeyPrefix,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize object store")
		return 1
	}

	session, err := whatsapp.Open(ctx, whatsapp.Options{
		SessionPath: cfg.WhatsAppSessionPath,
		QRPath:      cfg.QRPath,
		Alerter:     notifier,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open whatsapp session")
		return 1
	}

	assembler := listing.NewAssembler(store, session, uploader, extractor).WithCurrency(cfg.DefaultCurrency)
	pipeline := ingest.NewPipeline(ingest.NewClassifier(session), assembler)
	queue := ingest.NewQueue(pipeline)
	manager := connection.NewManager(session, notifier)
	session.SetEventHandler(&sessionEvents{Manager: manager, queue: queue})

	purger := housekeeping.NewService(store, cfg.PurgeInterval)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(ctx)
	})
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		return purger.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
		return 1
	}
	log.Info().Msg("shutdown complete")
	return 0
}

func newExtractor(ctx context.Context, cfg *config.Config, store *storage.SQLiteStore) (*llm.Extractor, error) {
	text := llm.NewChatCompleter(cfg.ExtractAPIKey, cfg.ExtractBaseURL, cfg.ExtractModel)

	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, vision fallback disabled")
		return llm.NewExtractor(text, nil, nil), nil
	}

	gemini, err := llm.NewGeminiIdentifier(ctx, cfg.GeminiAPIKey, cfg.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini vision fallback: %w", err)
	}
	log.Info().Str("model", cfg.VisionModel).Msg("vision fallback enabled with caching")

	return llm.NewExtractor(text, llm.NewCachedIdentifier(gemini, store), media.NewDownloader()), nil
}

// setupLogging configures the global logger and returns a function that
// closes the log file, if any.
func setupLogging(level string) func() {
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", level).Msg("unknown LOG_LEVEL, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// JOURNAL_STREAM is set by systemd when running as a service; journald
	// adds its own timestamps and handles persistence.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, PartsExclude: []string{zerolog.TimestampFieldName}})
		return func() {}
	}

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log file")
	}

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	log.Info().Str("logFile", logFileName).Msg("logging to file")

	return func() { logFile.Close() }
}
