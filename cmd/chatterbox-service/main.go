// main package for the chatterbox-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/chatterbox-service/internal/artifact"
	"github.com/book-expert/chatterbox-service/internal/config"
	"github.com/book-expert/chatterbox-service/internal/core"
	"github.com/book-expert/chatterbox-service/internal/engine"
	"github.com/book-expert/chatterbox-service/internal/fetch"
	"github.com/book-expert/chatterbox-service/internal/objectstore"
	"github.com/book-expert/chatterbox-service/internal/server"
	"github.com/book-expert/chatterbox-service/internal/synth"
	"github.com/book-expert/chatterbox-service/internal/voice"
	"github.com/book-expert/chatterbox-service/internal/worker"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	healthProbeWindow = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "chatterbox-service-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "chatterbox-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, finalLog)
}

func runService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	synthesisEngine, natsConnection, buildErr := buildEngine(ctx, cfg, log)
	if buildErr != nil {
		return buildErr
	}

	if natsConnection != nil {
		defer natsConnection.Close()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           buildMux(synthesisEngine, cfg, log),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       0,
		MaxHeaderBytes:    0,
		TLSConfig:         nil,
		TLSNextProto:      nil,
		ConnState:         nil,
		ErrorLog:          nil,
		BaseContext:       nil,
		ConnContext:       nil,
	}

	serveErrs := make(chan error, 1)

	go func() {
		log.System("Chatterbox service listening on %s", cfg.ListenAddr())

		serveErr := httpServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrs <- serveErr
		}

		close(serveErrs)
	}()

	workerErrs := startWorker(ctx, cfg, natsConnection, synthesisEngine, log)

	select {
	case <-ctx.Done():
		log.System("Shutdown signal received.")
	case serveErr := <-serveErrs:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	case workerErr := <-workerErrs:
		if workerErr != nil {
			return fmt.Errorf("job worker failed: %w", workerErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	return nil
}

// buildEngine wires the registry, cache, artifact store, and model client.
// The NATS connection is returned alongside so the caller can close it and
// hand it to the job worker; it is nil when NATS is not configured.
func buildEngine(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
) (*engine.Engine, *nats.Conn, error) {
	registry, registryErr := voice.NewRegistry(
		cfg.VoicesLibraryPath(),
		fetch.New(fetch.DefaultTimeout),
		log,
	)
	if registryErr != nil {
		return nil, nil, fmt.Errorf("failed to create voice registry: %w", registryErr)
	}

	store, natsConnection, storeErr := buildObjectStore(cfg, log)
	if storeErr != nil {
		return nil, nil, storeErr
	}

	modelClient := synth.NewClient(
		cfg.Model.BaseURL,
		time.Duration(cfg.Model.TimeoutSeconds)*time.Second,
	)

	synthesisEngine := engine.New(registry, artifact.NewCache(), store, modelClient, log)

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeWindow)
	defer cancel()

	healthErr := synthesisEngine.Healthy(probeCtx)
	if healthErr != nil {
		if natsConnection != nil {
			natsConnection.Close()
		}

		return nil, nil, fmt.Errorf(
			"speech model at %s is not available: %w",
			cfg.Model.BaseURL,
			healthErr,
		)
	}

	log.Info("Speech model at %s is healthy.", cfg.Model.BaseURL)

	return synthesisEngine, natsConnection, nil
}

// buildObjectStore selects the artifact backend: a JetStream bucket when NATS
// is configured, a local directory otherwise.
func buildObjectStore(cfg *config.Config, log *logger.Logger) (core.ObjectStore, *nats.Conn, error) {
	if cfg.NATS.URL == "" {
		store, fsErr := objectstore.NewFS(cfg.Paths.AudioDir)
		if fsErr != nil {
			return nil, nil, fmt.Errorf("failed to create audio store: %w", fsErr)
		}

		log.Info("Storing audio artifacts under %s", cfg.Paths.AudioDir)

		return store, nil, nil
	}

	natsConnection, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to connect to NATS at %s: %w",
			cfg.NATS.URL,
			connectErr,
		)
	}

	jetstreamContext, jsErr := natsConnection.JetStream()
	if jsErr != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", jsErr)
	}

	store, storeErr := objectstore.NewNATS(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if storeErr != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create artifact bucket: %w", storeErr)
	}

	log.Info("Storing audio artifacts in JetStream bucket '%s'", cfg.NATS.AudioObjectStoreBucket)

	return store, natsConnection, nil
}

// startWorker launches the pipeline job worker when NATS is configured. The
// returned channel reports the worker's exit; it stays open and silent when no
// worker runs.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	natsConnection *nats.Conn,
	synthesisEngine *engine.Engine,
	log *logger.Logger,
) <-chan error {
	workerErrs := make(chan error, 1)

	if natsConnection == nil || cfg.NATS.TextProcessedSubject == "" {
		return workerErrs
	}

	go func() {
		jobWorker, workerErr := worker.NewNatsWorker(
			natsConnection,
			cfg.NATS.TextProcessedSubject,
			synthesisEngine.Store(),
			synthesisEngine,
			log,
		)
		if workerErr != nil {
			workerErrs <- workerErr

			return
		}

		log.System("Listening for jobs on subject: %s", cfg.NATS.TextProcessedSubject)

		runErr := jobWorker.Run(ctx)
		if runErr != nil {
			workerErrs <- runErr
		}
	}()

	return workerErrs
}

func buildMux(synthesisEngine *engine.Engine, cfg *config.Config, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	server.New(synthesisEngine, cfg.Model.Device, log).Register(mux)

	return mux
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
