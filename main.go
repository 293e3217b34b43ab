package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/fleetinspectbackend/cache"
	"github.com/camden-git/fleetinspectbackend/clients/gcp"
	"github.com/camden-git/fleetinspectbackend/config"
	"github.com/camden-git/fleetinspectbackend/database"
	"github.com/camden-git/fleetinspectbackend/handlers"
	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/media"
	"github.com/camden-git/fleetinspectbackend/realtime"
	"github.com/camden-git/fleetinspectbackend/repository"
	"github.com/camden-git/fleetinspectbackend/services"
	"github.com/camden-git/fleetinspectbackend/vision"
	"github.com/camden-git/fleetinspectbackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	db, err := database.InitGormDB(appLog, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		appLog.Fatal("Failed to initialize database", "driver", cfg.DatabaseDriver, "error", err)
	}
	if err := database.AutoMigrateModels(appLog, db); err != nil {
		appLog.Fatal("Failed to migrate database", "error", err)
	}

	var (
		store      media.ArtifactStore
		localStore *media.LocalStorage
	)
	switch cfg.StorageBackend {
	case config.StorageBackendGCS:
		bucketStore, err := gcp.NewBucketStore(appLog, cfg.GCSBucketName, cfg.GCSCDNDomain)
		if err != nil {
			appLog.Fatal("Failed to initialize bucket store", "bucket", cfg.GCSBucketName, "error", err)
		}
		defer bucketStore.Close()
		store = bucketStore
	default:
		localStore, err = media.NewLocalStorage(appLog, cfg.MediaStoragePath, cfg.ArtifactBaseURL)
		if err != nil {
			appLog.Fatal("Failed to initialize local artifact store", "path", cfg.MediaStoragePath, "error", err)
		}
		store = localStore
	}

	var analysisCache cache.AnalysisCache
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		redisCache, err := cache.NewRedisCache(appLog, cfg.RedisAddr, cfg.RedisKeyPrefix, cfg.CacheTTL)
		if err != nil {
			appLog.Fatal("Failed to connect analysis cache", "addr", cfg.RedisAddr, "error", err)
		}
		defer redisCache.Close()
		analysisCache = redisCache
	default:
		analysisCache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	var visionClient vision.Client
	if cfg.VisionBackend == config.VisionBackendGCP {
		var loader gcp.ContentLoader
		if localStore != nil {
			loader = func(uri string) ([]byte, bool, error) {
				if _, ok := localStore.KeyForURI(uri); !ok {
					return nil, false, nil
				}
				data, err := localStore.ReadURI(uri)
				return data, true, err
			}
		}
		gcpVision, err := gcp.NewVisionClient(appLog, loader)
		if err != nil {
			appLog.Fatal("Failed to initialize vision client", "error", err)
		}
		defer gcpVision.Close()
		visionClient = gcpVision
	} else {
		appLog.Warn("Vision analysis disabled, processing will mark photos failed")
	}

	photoRepo := repository.NewPhotoRepository(db)
	resultRepo := repository.NewAnalysisResultRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)
	readingRepo := repository.NewMeterReadingRepository(db)

	hub := realtime.NewHub(appLog)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	meterExtractor := services.NewMeterReadingExtractor(readingRepo)
	orchestrator := services.NewAnalysisOrchestrator(
		appLog,
		photoRepo,
		resultRepo,
		visionClient,
		analysisCache,
		services.NewAnomalyClassifier(cfg.AnomalyMinConfidence),
		meterExtractor,
		realtime.NewHubNotifier(hub),
		cfg.VisionTimeout,
	)
	ingestService := services.NewIngestService(appLog, photoRepo, store, media.NewCompressor(), services.IngestLimits{
		MaxUploadBytes:      cfg.MaxUploadBytes,
		MaxImagePixels:      cfg.MaxImagePixels,
		CompressTargetBytes: cfg.CompressTargetBytes,
		ThumbnailSize:       cfg.ThumbnailMaxSize,
		UploadTimeout:       cfg.UploadTimeout,
	})
	feedbackService := services.NewFeedbackService(appLog, anomalyRepo, readingRepo, meterExtractor)
	queryService := services.NewInspectionQueryService(photoRepo, resultRepo, anomalyRepo, readingRepo)

	if _, err := orchestrator.RecoverInterrupted(); err != nil {
		appLog.Error("Failed to recover interrupted photos", "error", err)
	}

	appLog.Info("Initializing analysis worker pool", "workers", cfg.NumAnalysisWorkers, "queue_size", cfg.AnalysisQueueSize)
	analysisQueue := workers.NewAnalysisQueue(appLog, orchestrator, cfg.AnalysisQueueSize, cfg.NumAnalysisWorkers)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	inspectionHandler := &handlers.InspectionHandler{
		Log:            appLog,
		Ingest:         ingestService,
		Analyzer:       orchestrator,
		Scheduler:      analysisQueue,
		Reader:         queryService,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	feedbackHandler := &handlers.FeedbackHandler{Log: appLog, Feedback: feedbackService}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// uploads and batches carry their own upload and vision timeouts
			r.Use(middleware.Timeout(cfg.UploadTimeout + cfg.VisionTimeout*2))

			r.Route("/inspections", func(r chi.Router) {
				r.Post("/photos", inspectionHandler.UploadPhoto)
				r.Route("/photos/{photo_id}", func(r chi.Router) {
					r.Get("/", inspectionHandler.GetPhoto)
					r.Post("/process", inspectionHandler.ProcessPhoto)
					r.Post("/reprocess", inspectionHandler.ReprocessPhoto)
				})
				r.Post("/batch", inspectionHandler.AnalyzeBatch)
			})

			r.Get("/assets/{asset_id}/photos", inspectionHandler.ListAssetPhotos)

			r.Put("/anomalies/{anomaly_id}/confirmation", feedbackHandler.ConfirmAnomaly)
			r.Route("/readings/{reading_id}", func(r chi.Router) {
				r.Put("/validation", feedbackHandler.ValidateReading)
				r.Post("/revalidate", feedbackHandler.RevalidateReading)
			})
		})

		if localStore != nil {
			r.Get("/artifacts/*", handlers.ArtifactServer(appLog, localStore, cfg.ArtifactBaseURL+"/"))
		}
	})

	r.Get("/ws", hub.ServeWS)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLog.Info("Server starting", "port", cfg.Port, "storage", cfg.StorageBackend, "cache", cfg.CacheBackend, "vision", cfg.VisionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Could not start server", "port", cfg.Port, "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("Server forced to shutdown", "error", err)
	}

	analysisQueue.Stop()
	appLog.Info("Server exited properly")
}
