package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"face-attendance-backend/config"
	"face-attendance-backend/internal/api"
	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/checkin"
	"face-attendance-backend/internal/db"
	"face-attendance-backend/internal/embedder"
	"face-attendance-backend/internal/gallery"
	"face-attendance-backend/internal/mw"
	"face-attendance-backend/internal/notification"
	"face-attendance-backend/internal/recognition"
	"face-attendance-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "attendanced ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	policy, err := attendance.NewPolicy(
		cfg.Attendance.CheckInStart,
		cfg.Attendance.CheckInEnd,
		cfg.Attendance.CheckOutStart,
		cfg.Attendance.Location(),
	)
	if err != nil {
		logger.Fatalf("invalid attendance policy: %v", err)
	}

	matcher, err := recognition.NewMatcher(cfg.Recognition.Threshold)
	if err != nil {
		logger.Fatalf("invalid recognition settings: %v", err)
	}

	extractor, closeExtractor, err := newExtractor(&cfg.Recognition)
	if err != nil {
		logger.Fatalf("failed to initialize face extractor: %v", err)
	}
	defer closeExtractor()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	loader := gallery.NewLoader(
		appStore,
		gallery.FSImageStore{Root: cfg.Gallery.PictureDir, Prefix: cfg.Gallery.PicturePrefix},
		extractor,
		cfg.Gallery.Workers,
	)
	galleryCache := gallery.NewCache(loader, cfg.Gallery.CacheTTL, gallery.WithLoadTimeout(cfg.Recognition.Timeout))
	if galleryCache.Enabled() && cfg.Gallery.RefreshInterval > 0 {
		scheduler, err := gallery.ScheduleRefresh(galleryCache, cfg.Gallery.RefreshInterval, cfg.Recognition.Timeout)
		if err != nil {
			logger.Fatalf("failed to schedule gallery refresh: %v", err)
		}
		defer scheduler.Stop()
		logger.Printf("gallery refresh scheduled every %s", cfg.Gallery.RefreshInterval)
	}

	opts := []checkin.Option{}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, policy.Location)
		workerPool.Start(ctx)
		opts = append(opts, checkin.WithNotifier(workerPool))
	} else {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	}

	service := checkin.NewService(galleryCache, extractor, matcher, appStore, policy, opts...)

	responseCache := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
	handler := api.NewHandler(appStore, service, galleryCache, responseCache, webpushOptions, cfg.Server.MaxUploadBytes)
	router := api.NewRouter(handler, api.RouterOptions{
		RequestIPHeader: cfg.Server.RequestIPHeader,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// newExtractor builds the configured face extractor and its cleanup.
func newExtractor(cfg *config.RecognitionConfig) (recognition.Extractor, func(), error) {
	switch cfg.Extractor {
	case "dlib":
		local, err := embedder.NewLocal(cfg.ModelDir)
		if err != nil {
			return nil, nil, err
		}
		return local, func() { local.Close() }, nil
	default:
		return embedder.NewClient(cfg.EmbeddingURL, cfg.Timeout), func() {}, nil
	}
}
