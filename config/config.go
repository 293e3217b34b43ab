package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	VisionBackendGCP      = "gcp"
	VisionBackendDisabled = "disabled"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

const (
	defaultAnalysisQueueSize   = 200
	defaultNumAnalysisWorkers  = 4
	defaultThumbnailMaxSize    = 300
	defaultCacheTTLDays        = 7
	defaultMaxUploadBytes      = 20 << 20
	defaultMaxImagePixels      = 50_000_000
	defaultCompressTargetBytes = 2 << 20
	defaultAnomalyMinConf      = 0.7
	defaultVisionTimeout       = 30 * time.Second
	defaultUploadTimeout       = 60 * time.Second
)

type Config struct {
	// database
	DatabaseDriver string
	DatabaseDSN    string

	// artifact storage
	StorageBackend   string
	MediaStoragePath string // root for the local artifact store
	ArtifactBaseURL  string // public prefix for locally stored artifacts
	GCSBucketName    string
	GCSCDNDomain     string

	// analysis cache
	CacheBackend   string
	RedisAddr      string
	RedisKeyPrefix string
	CacheTTL       time.Duration

	// vision service
	VisionBackend string
	VisionTimeout time.Duration

	// upload / compression limits
	MaxUploadBytes      int64
	MaxImagePixels      int64
	CompressTargetBytes int
	ThumbnailMaxSize    int
	UploadTimeout       time.Duration

	// findings
	AnomalyMinConfidence float64

	// worker settings
	AnalysisQueueSize  int
	NumAnalysisWorkers int

	// server
	LogMode            string
	Port               string
	CORSAllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func oneOf(envVar, value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid %s '%s' (allowed: %s)", envVar, value, strings.Join(allowed, ", "))
}

func LoadConfig() (Config, error) {
	driver, err := oneOf("DATABASE_DRIVER", getEnvOrDefault("DATABASE_DRIVER", DatabaseDriverSQLite), DatabaseDriverSQLite, DatabaseDriverPostgres)
	if err != nil {
		return Config{}, err
	}
	dsn := getEnvOrDefault("DATABASE_DSN", "inspections.db")

	storageBackend, err := oneOf("STORAGE_BACKEND", getEnvOrDefault("STORAGE_BACKEND", StorageBackendLocal), StorageBackendLocal, StorageBackendGCS)
	if err != nil {
		return Config{}, err
	}
	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}
	bucket := os.Getenv("GCS_BUCKET_NAME")
	if storageBackend == StorageBackendGCS && bucket == "" {
		return Config{}, fmt.Errorf("missing env var GCS_BUCKET_NAME for storage backend %s", storageBackend)
	}

	cacheBackend, err := oneOf("CACHE_BACKEND", getEnvOrDefault("CACHE_BACKEND", CacheBackendMemory), CacheBackendMemory, CacheBackendRedis)
	if err != nil {
		return Config{}, err
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if cacheBackend == CacheBackendRedis && redisAddr == "" {
		return Config{}, fmt.Errorf("missing env var REDIS_ADDR for cache backend %s", cacheBackend)
	}

	visionBackend, err := oneOf("VISION_BACKEND", getEnvOrDefault("VISION_BACKEND", VisionBackendGCP), VisionBackendGCP, VisionBackendDisabled)
	if err != nil {
		return Config{}, err
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DatabaseDriver:       driver,
		DatabaseDSN:          dsn,
		StorageBackend:       storageBackend,
		MediaStoragePath:     absMediaStorage,
		ArtifactBaseURL:      strings.TrimRight(getEnvOrDefault("ARTIFACT_BASE_URL", "/api/artifacts"), "/"),
		GCSBucketName:        bucket,
		GCSCDNDomain:         os.Getenv("GCS_CDN_DOMAIN"),
		CacheBackend:         cacheBackend,
		RedisAddr:            redisAddr,
		RedisKeyPrefix:       getEnvOrDefault("REDIS_KEY_PREFIX", "inspection:analysis:"),
		CacheTTL:             time.Duration(getEnvIntOrDefault("ANALYSIS_CACHE_TTL_DAYS", defaultCacheTTLDays)) * 24 * time.Hour,
		VisionBackend:        visionBackend,
		VisionTimeout:        getEnvDurationOrDefault("VISION_TIMEOUT", defaultVisionTimeout),
		MaxUploadBytes:       int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		MaxImagePixels:       int64(getEnvIntOrDefault("MAX_IMAGE_PIXELS", defaultMaxImagePixels)),
		CompressTargetBytes:  getEnvIntOrDefault("COMPRESS_TARGET_BYTES", defaultCompressTargetBytes),
		ThumbnailMaxSize:     getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		UploadTimeout:        getEnvDurationOrDefault("UPLOAD_TIMEOUT", defaultUploadTimeout),
		AnomalyMinConfidence: getEnvFloatOrDefault("ANOMALY_MIN_CONFIDENCE", defaultAnomalyMinConf),
		AnalysisQueueSize:    getEnvIntOrDefault("ANALYSIS_QUEUE_SIZE", defaultAnalysisQueueSize),
		NumAnalysisWorkers:   getEnvIntOrDefault("NUM_ANALYSIS_WORKERS", defaultNumAnalysisWorkers),
		LogMode:              getEnvOrDefault("LOG_MODE", "dev"),
		Port:                 getEnvOrDefault("PORT", "8080"),
		CORSAllowedOrigins:   origins,
	}

	return cfg, nil
}
