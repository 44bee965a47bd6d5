package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
)

// Config holds every runtime setting, loaded from the environment.
type Config struct {
	// Vector index.
	MilvusHost string
	MilvusPort string
	Collection string

	// Embedding endpoint.
	EmbeddingEndpoint string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingDim      int

	// Document source (S3-compatible).
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool

	// Batch ingestion.
	MaxDocuments    int
	Workers         int
	DocumentTimeout time.Duration
	BatchPause      time.Duration
}

// Load reads configuration from a .env file (when present) and the
// environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment only")
	}

	return &Config{
		MilvusHost: getEnvWithDefault("MILVUS_HOST", "localhost"),
		MilvusPort: getEnvWithDefault("MILVUS_PORT", "19530"),
		Collection: getEnvWithDefault("KINDEX_COLLECTION", "document_chunks"),

		EmbeddingEndpoint: os.Getenv("EMBEDDING_ENDPOINT"),
		EmbeddingAPIKey:   os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:    getEnvWithDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      getEnvInt("EMBEDDING_DIM", 1536),

		StorageEndpoint:  os.Getenv("STORAGE_ENDPOINT"),
		StorageAccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		StorageBucket:    os.Getenv("STORAGE_BUCKET"),
		StorageUseSSL:    getEnvBool("STORAGE_USE_SSL", false),

		MaxDocuments:    getEnvInt("KINDEX_MAX_DOCUMENTS", 0),
		Workers:         getEnvInt("KINDEX_WORKERS", 4),
		DocumentTimeout: getEnvDuration("KINDEX_DOCUMENT_TIMEOUT", 2*time.Minute),
		BatchPause:      getEnvDuration("KINDEX_BATCH_PAUSE", time.Second),
	}
}

// MilvusAddress joins the host and port into a client address.
func (c *Config) MilvusAddress() string {
	return c.MilvusHost + ":" + c.MilvusPort
}

// ValidateIndex checks the settings an online index connection needs.
func (c *Config) ValidateIndex() error {
	var missing []string
	if c.MilvusHost == "" {
		missing = append(missing, "MILVUS_HOST")
	}
	if c.EmbeddingEndpoint == "" {
		missing = append(missing, "EMBEDDING_ENDPOINT")
	}
	if c.EmbeddingDim <= 0 {
		missing = append(missing, "EMBEDDING_DIM")
	}
	if len(missing) > 0 {
		return kberrors.Newf(kberrors.KindConfiguration,
			"missing settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateBatch checks the settings a batch run needs on top of the index
// settings.
func (c *Config) ValidateBatch() error {
	if err := c.ValidateIndex(); err != nil {
		return err
	}
	return c.ValidateStorage()
}

// ValidateStorage checks the document source settings alone, for runs that
// replace the index with the in-memory store.
func (c *Config) ValidateStorage() error {
	var missing []string
	if c.StorageEndpoint == "" {
		missing = append(missing, "STORAGE_ENDPOINT")
	}
	if c.StorageBucket == "" {
		missing = append(missing, "STORAGE_BUCKET")
	}
	if len(missing) > 0 {
		return kberrors.Newf(kberrors.KindConfiguration,
			"missing settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("Ignoring %s=%q: not an integer", key, value)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warn("Ignoring %s=%q: not a boolean", key, value)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Ignoring %s=%q: not a duration", key, value)
		return defaultValue
	}
	return d
}
