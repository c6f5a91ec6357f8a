package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type S3Cfg struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// BuildCfg is stamped into the build_info metric.
type BuildCfg struct {
	Revision string
	Date     string
}

type Config struct {
	Addr                 string
	LogLevel             string
	LogConsole           bool
	LogSampleN           int
	ManifestPointerURL   string
	ManifestURLTemplate  string
	StorageRoot          string
	S3                   S3Cfg
	FetchTimeout         time.Duration
	MinDownloadZoom      float64
	RetrievalPolicy      string
	ReadBatchSize        int
	RedisAddr            string
	ArtifactCacheEnabled bool
	ArtifactCacheTTL     time.Duration
	CacheOpTimeout       time.Duration
	Invalidation         InvalidationCfg
	MetricsEnabled       bool
	MetricsPath          string
	Build                BuildCfg
}

// Load reads a .env file if one exists and then the environment.
// Variables already set in the environment are not overridden.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

func FromEnv() Config {
	policy := strings.ToLower(getenv("RETRIEVAL_POLICY", "all_or_nothing"))
	switch policy {
	case "all_or_nothing", "partial":
	default:
		policy = "all_or_nothing"
	}

	return Config{
		Addr:                getenv("ADDR", ":8090"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogConsole:          getbool("LOG_CONSOLE", false),
		LogSampleN:          getint("LOG_SAMPLE_N", 0),
		ManifestPointerURL:  getenv("MANIFEST_POINTER_URL", "https://labs.overturemaps.org/data/latest.json"),
		ManifestURLTemplate: getenv("MANIFEST_URL_TEMPLATE", "https://labs.overturemaps.org/data/{version}/explore-site-download-manifest.json"),
		StorageRoot:         strings.TrimRight(getenv("STORAGE_ROOT", "s3://overturemaps-us-west-2/release"), "/"),
		S3: S3Cfg{
			Endpoint:  getenv("S3_ENDPOINT", "s3.us-west-2.amazonaws.com"),
			Region:    getenv("S3_REGION", "us-west-2"),
			AccessKey: getenv("S3_ACCESS_KEY", ""),
			SecretKey: getenv("S3_SECRET_KEY", ""),
			UseSSL:    getbool("S3_USE_SSL", true),
		},
		FetchTimeout:         getduration("FETCH_TIMEOUT", 30*time.Second),
		MinDownloadZoom:      getfloat("MIN_DOWNLOAD_ZOOM", 15),
		RetrievalPolicy:      policy,
		ReadBatchSize:        getint("READ_BATCH_SIZE", 64*1024),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		ArtifactCacheEnabled: getbool("ARTIFACT_CACHE_ENABLED", false),
		ArtifactCacheTTL:     getduration("ARTIFACT_CACHE_TTL", time.Hour),
		CacheOpTimeout:       getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "overture-releases"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "manifest-invalidator"),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
		Build: BuildCfg{
			Revision: getenv("BUILD_REVISION", ""),
			Date:     getenv("BUILD_DATE", ""),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
