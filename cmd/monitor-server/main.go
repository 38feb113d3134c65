// Package main — cmd/monitor-server/main.go
//
// monitor-server entrypoint: error intake, aggregation, alerting, and
// notification pipeline for browser/SDK error reports.
//
// Startup sequence:
//  1. Load and validate config from /etc/monitor/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open bbolt storage and the blob (source archive) store.
//  4. Start Prometheus metrics server (127.0.0.1:9091).
//  5. Build the aggregation store (its per-project similarity index
//     starts empty; Store.Warm is not called).
//  6. Build the alerting evaluator and notification dispatcher.
//  7. Optionally dial the ai-diagnosis gRPC endpoint.
//  8. Start every queue.Pool worker pool (error-processing,
//     error-aggregation, sourcemap-processing, email-notification,
//     ai-diagnosis) wired to the pipeline.Processor's handlers.
//  9. Start the admin Unix socket (queue introspection, dead-letter
//     requeue, pause/resume), if enabled.
// 10. Start the chi HTTP intake server.
// 11. Register SIGHUP handler for config hot-reload.
// 12. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to every worker pool and server).
//  2. Wait for the HTTP and admin servers to drain (bounded timeout).
//  3. Close bbolt.
//  4. Flush logger.
//  5. Exit 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lqt0707/monitor/internal/aggregation"
	"github.com/lqt0707/monitor/internal/alerting"
	"github.com/lqt0707/monitor/internal/config"
	"github.com/lqt0707/monitor/internal/diagnosis"
	"github.com/lqt0707/monitor/internal/fingerprint"
	"github.com/lqt0707/monitor/internal/ingest"
	"github.com/lqt0707/monitor/internal/notify"
	"github.com/lqt0707/monitor/internal/observability"
	"github.com/lqt0707/monitor/internal/opsadmin"
	"github.com/lqt0707/monitor/internal/pipeline"
	"github.com/lqt0707/monitor/internal/queue"
	"github.com/lqt0707/monitor/internal/sourcemapresolver"
	"github.com/lqt0707/monitor/internal/store"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/monitor/config.yaml", "Path to config.yaml")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("monitor-server %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("monitor-server starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Storage ───────────────────────────────────────────────────────
	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("bbolt open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("bbolt opened", zap.String("path", cfg.Storage.DBPath))

	blobs, err := store.NewBlobStore(cfg.Blob.Root)
	if err != nil {
		log.Fatal("blob store open failed", zap.Error(err), zap.String("root", cfg.Blob.Root))
	}

	// ── Step 4: Metrics ───────────────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 5: Aggregation store ─────────────────────────────────────────────
	aggStore := aggregation.NewStore(db, cfg.Fingerprint.SimilarityThreshold, log)

	resolver, err := sourcemapresolver.New(blobs, 10*time.Minute, 256, log)
	if err != nil {
		log.Fatal("sourcemap resolver init failed", zap.Error(err))
	}

	// ── Step 6: Alerting + notification ───────────────────────────────────────
	totals := alerting.NewSlidingWindow(time.Hour)
	defer totals.Close()
	metricWindow := alerting.NewMetricWindow(time.Hour)
	defer metricWindow.Close()
	evaluator := alerting.NewEvaluator(db, db, totals, metricWindow)

	dispatcher := notify.NewDispatcher(
		notify.SMTPConfig{Addr: cfg.SMTP.Addr, From: cfg.SMTP.From, Username: cfg.SMTP.Username, Password: cfg.SMTP.Password},
		nil,
		notify.NewPacer(cfg.SMTP.MinInterval),
		db,
		log,
	)

	// ── Step 7: Optional ai-diagnosis client ──────────────────────────────────
	var diagClient *diagnosis.Client
	if cfg.Diagnosis.Enabled {
		diagClient, err = diagnosis.Dial(cfg.Diagnosis.TargetAddr, cfg.Diagnosis.Timeout, log)
		if err != nil {
			log.Error("ai-diagnosis dial failed, disabling diagnosis queue", zap.Error(err))
			diagClient = nil
		} else {
			defer diagClient.Close() //nolint:errcheck
			log.Info("ai-diagnosis client dialed", zap.String("addr", cfg.Diagnosis.TargetAddr))
		}
	}

	proc := &pipeline.Processor{
		Projects:        db,
		RawEvents:       db,
		SourceArchives:  db,
		Aggregations:    aggStore,
		Evaluator:       evaluator,
		Dispatcher:      dispatcher,
		Resolver:        resolver,
		Metrics:         metrics,
		FingerprintK:    cfg.Fingerprint.K,
		FingerprintOpts: fingerprint.DefaultOptions(),
		Log:             log,
	}

	// ── Step 8: Worker pools ──────────────────────────────────────────────────
	queues := make(map[string]opsadmin.QueueAdmin)

	aggPool := queue.New(queueConfig("error-aggregation", cfg.Queues.ErrorAggregation), proc.ProcessAggregation, nil, metrics, log)
	aggDLQ := queue.NewDeadLetterStore(aggPool)
	aggPool.SetDeadLetter(aggDLQ.Capture)
	queues[aggDLQ.Name()] = aggDLQ
	proc.EnqueueAggregation = pipeline.QueueAdapter(aggPool)

	sourcemapPool := queue.New(queueConfig("sourcemap-processing", cfg.Queues.SourcemapProcessing), proc.ProcessSourcemap, nil, metrics, log)
	sourcemapDLQ := queue.NewDeadLetterStore(sourcemapPool)
	sourcemapPool.SetDeadLetter(sourcemapDLQ.Capture)
	queues[sourcemapDLQ.Name()] = sourcemapDLQ
	proc.EnqueueSourcemap = pipeline.QueueAdapter(sourcemapPool)

	notifyPool := queue.New(queueConfig("email-notification", cfg.Queues.EmailNotification), proc.ProcessNotification, nil, metrics, log)
	notifyDLQ := queue.NewDeadLetterStore(notifyPool)
	notifyPool.SetDeadLetter(notifyDLQ.Capture)
	queues[notifyDLQ.Name()] = notifyDLQ
	proc.EnqueueNotify = pipeline.QueueAdapter(notifyPool)

	reportPool := queue.New(queueConfig("error-processing", cfg.Queues.ErrorProcessing), proc.ProcessReport, nil, metrics, log)
	reportDLQ := queue.NewDeadLetterStore(reportPool)
	reportPool.SetDeadLetter(reportDLQ.Capture)
	queues[reportDLQ.Name()] = reportDLQ

	go aggPool.Run(ctx)
	go sourcemapPool.Run(ctx)
	go notifyPool.Run(ctx)
	go reportPool.Run(ctx)

	if diagClient != nil {
		diagPool := queue.New(queueConfig("ai-diagnosis", cfg.Queues.AIDiagnosis),
			diagClient.Handler(proc.ApplyDiagnosis), nil, metrics, log)
		diagDLQ := queue.NewDeadLetterStore(diagPool)
		diagPool.SetDeadLetter(diagDLQ.Capture)
		queues[diagDLQ.Name()] = diagDLQ
		proc.EnqueueDiagnosis = pipeline.QueueAdapter(diagPool)
		go diagPool.Run(ctx)
	}
	log.Info("worker pools started", zap.Int("count", len(queues)))

	// ── Step 9: Admin socket ──────────────────────────────────────────────────
	admin := opsadmin.NewServer(cfg.Admin.SocketPath, queues, log)
	if cfg.Admin.Enabled {
		go func() {
			if err := admin.ListenAndServe(ctx); err != nil {
				log.Error("admin server error", zap.Error(err))
			}
		}()
		log.Info("admin socket started", zap.String("path", cfg.Admin.SocketPath))
	}

	// ── Step 10: HTTP intake server ───────────────────────────────────────────
	server := ingest.New(ingest.Deps{
		Config:         cfg.Server,
		Projects:       db,
		SourceArchives: db,
		Blobs:          blobs,
		Resolver:       resolver,
		Metrics:        metrics,
		Log:            log,
		EnqueueReport:  pipeline.QueueAdapter(reportPool),
	})
	go func() {
		if err := server.ListenAndServe(ctx, cfg.Server.ShutdownTimeout); err != nil {
			log.Error("ingest server error", zap.Error(err))
		}
	}()

	// ── Step 11: SIGHUP hot-reload ────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config hot-reload successful", zap.Float64("new_similarity_threshold", newCfg.Fingerprint.SimilarityThreshold))
			// The reloaded config is validated and logged only; the running
			// workers, stores and servers keep the values they started with.
		}
	}()

	// ── Step 12: Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(500 * time.Millisecond) // let worker pools and servers observe ctx.Done()
	log.Info("monitor-server shutdown complete")
}

func queueConfig(name string, q config.QueueConfig) queue.Config {
	return queue.Config{Name: name, Capacity: q.Capacity, Concurrency: q.Concurrency, MaxRetries: q.MaxRetries, BaseDelay: q.BaseDelay}
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
