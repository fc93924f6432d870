package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/rucnyz/vulscan-plugin/internal/application"
	"github.com/rucnyz/vulscan-plugin/internal/application/analyzer"
	"github.com/rucnyz/vulscan-plugin/internal/application/viewsync"
	"github.com/rucnyz/vulscan-plugin/internal/config"
	"github.com/rucnyz/vulscan-plugin/internal/domain/analysis"
	"github.com/rucnyz/vulscan-plugin/internal/domain/history"
	openaiClient "github.com/rucnyz/vulscan-plugin/internal/infra/ai/openai"
	mysqlp "github.com/rucnyz/vulscan-plugin/internal/infra/db/mysql"
	postgresp "github.com/rucnyz/vulscan-plugin/internal/infra/db/postgres"
	"github.com/rucnyz/vulscan-plugin/internal/infra/highlights"
	"github.com/rucnyz/vulscan-plugin/internal/infra/httpserver"
	"github.com/rucnyz/vulscan-plugin/internal/infra/notify"
	"github.com/rucnyz/vulscan-plugin/internal/infra/remote"
	"github.com/rucnyz/vulscan-plugin/internal/infra/resultstore"
	minioStore "github.com/rucnyz/vulscan-plugin/internal/infra/storage"
	"github.com/rucnyz/vulscan-plugin/internal/infra/symbols"
	"github.com/rucnyz/vulscan-plugin/internal/middleware"
)

// metricsRecorder feeds finished-run tallies into the daemon counters.
type metricsRecorder struct{}

func (metricsRecorder) RunCompleted(analyzed, fromCache, failed int) {
	middleware.AddUnitCounts(analyzed, fromCache, failed)
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	notices := notify.NewCenter(100)

	// backend: hosted analysis service, OpenAI directly as fallback
	var backend analysis.Analyzer
	var defaultModel string
	if cfg.Remote.BaseURL != "" {
		retrier := remote.NewRetrier(cfg.Remote.MaxRetries, notices)
		backend = remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, retrier)
		defaultModel = cfg.Remote.Model
	} else {
		backend = openaiClient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		defaultModel = cfg.OpenAI.Model
	}

	// optional run history database
	checkers := map[string]middleware.HealthChecker{}
	var historyRepo history.Repository
	var failureRepo history.FailureRepository
	if cfg.Database.Enabled {
		switch cfg.Database.Driver {
		case "postgres":
			db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
			if err != nil {
				log.Fatalf("postgres connect error: %v", err)
			}
			defer db.Close()
			historyRepo = postgresp.NewHistoryRepository(db)
			failureRepo = postgresp.NewFailureRepository(db)
			checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		default:
			db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
			if err != nil {
				log.Fatalf("mysql connect error: %v", err)
			}
			defer db.Close()
			historyRepo = mysqlp.NewHistoryRepository(db)
			failureRepo = mysqlp.NewFailureRepository(db)
			checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		}
	}

	// optional report archive
	var archive history.ReportArchive
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
	}

	store := resultstore.New()
	hl := highlights.New()
	views := viewsync.New(store, hl)

	svc := &analyzer.Service{
		Analyzer:     backend,
		Store:        store,
		Symbols:      symbols.NewProvider(),
		Notifier:     notices,
		Views:        views,
		Runs:         analyzer.NewRuns(),
		Clock:        application.SystemClock{},
		Metrics:      metricsRecorder{},
		DefaultModel: defaultModel,
		History:      historyRepo,
		Failures:     failureRepo,
		Archive:      archive,
	}

	checkers["backend"] = middleware.CheckerFunc(func(ctx context.Context) error {
		_, err := backend.TokenUsage(ctx)
		return err
	})

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.Server.CORS) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORS,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}
	mux.Use(middleware.TokenAuth(cfg.Server.AuthToken))
	mux.Use(middleware.RateLimitMiddleware(60, 10))
	mux.Mount("/", httpserver.NewRouter(svc, views, hl, notices, historyRepo, failureRepo,
		middleware.HealthHandler(checkers)))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		// selection analysis is synchronous and may sit out rate-limit waits
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("vulscand listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
