package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/fieldcrypt"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/memqueue"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/notify"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/objectstore"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/redisqueue"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/workbook"
	httphandler "github.com/ericfisherdev/civicrecords/internal/adapter/driving/http"
	"github.com/ericfisherdev/civicrecords/internal/application"
	"github.com/ericfisherdev/civicrecords/internal/config"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
	"github.com/ericfisherdev/civicrecords/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ring, err := cfg.RequireKeyring()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_driver", cfg.DBDriver,
		"primary_key", ring.Primary(),
		"smtp", cfg.HasSMTP(),
		"document_store", cfg.HasDocumentStore(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and apply migrations.
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "driver", backend.Driver())

	if err := backend.Migrate(); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 4. Wire the field codec into the record stores.
	mapper := recordmap.New(fieldcrypt.New(ring))
	stores := backend.Stores(mapper)

	present, err := recordmap.NewPresenter(cfg.DisplayZone)
	if err != nil {
		return err
	}

	checks := []application.HealthCheck{{Name: "database", Critical: true, Check: backend.Ping}}

	// 5. Notification queue and delivery.
	queue, closeQueue, queueCheck, err := openQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue()
	if queueCheck != nil {
		checks = append(checks, *queueCheck)
	}

	var notifier driven.Notifier = notify.NewLogNotifier(slog.Default())
	if cfg.HasSMTP() {
		smtp, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return err
		}
		notifier = smtp
		slog.Info("smtp notifier configured", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		slog.Info("no smtp host configured, notifications are logged only")
	}

	dispatcher := application.NewNotificationDispatcher(queue, notifier)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Start(ctx)
	}()

	// 6. Application services.
	residentSvc := application.NewResidentService(stores.Residents)
	credentialSvc := application.NewCredentialService(stores.Credentials, stores.Residents, queue)
	transactionSvc := application.NewTransactionService(stores.Transactions, stores.Residents, stores.Credentials, queue)
	healthSvc := application.NewHealthService(checks...)

	var documentSvc httphandler.DocumentService
	renderer, err := workbook.Open(cfg.TemplateDir, cfg.TemplateCatalog)
	switch {
	case err == nil:
		var docStore driven.DocumentStore
		if cfg.HasDocumentStore() {
			docStore = objectstore.New(objectstore.Config{
				Endpoint:  cfg.S3Endpoint,
				Region:    cfg.S3Region,
				Bucket:    cfg.S3Bucket,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
			})
			slog.Info("document store configured", "bucket", cfg.S3Bucket)
		}
		documentSvc = application.NewDocumentService(transactionSvc, stores.Residents, renderer, docStore, present)
		slog.Info("document templates loaded", "catalog", cfg.TemplateCatalog)
	case errors.Is(err, os.ErrNotExist):
		slog.Info("no template catalog found, document rendering disabled", "catalog", cfg.TemplateCatalog)
	default:
		return err
	}

	// 7. HTTP server.
	apiHandler := httphandler.NewHandler(residentSvc, credentialSvc, transactionSvc, documentSvc, healthSvc, present, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("civicrecords started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		slog.Warn("notification dispatcher did not stop before shutdown timeout")
	}

	slog.Info("shutdown complete")
	return nil
}

// openQueue selects the Redis queue when an address is configured and the
// in-process queue otherwise. The returned check is nil for the in-process
// queue.
func openQueue(ctx context.Context, cfg *config.Config) (driven.NotificationQueue, func(), *application.HealthCheck, error) {
	if cfg.RedisAddr == "" {
		q := memqueue.New(cfg.QueueSize)
		slog.Info("using in-process notification queue", "size", cfg.QueueSize)
		return q, q.Close, nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	slog.Info("using redis notification queue", "addr", cfg.RedisAddr)

	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("error closing redis client", "error", err)
		}
	}
	check := &application.HealthCheck{
		Name: "queue",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
	return redisqueue.New(client, redisqueue.DefaultKey, time.Second), closeFn, check, nil
}
