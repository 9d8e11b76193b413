package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

type ConfigStruct struct {
	Library LibraryConfig
	Options Options
	Sentry  SentryConfig
}

type LibraryConfig struct {
	Dir            string
	ItemsDir       string
	SubsetsDir     string
	DBPath         string
	LoadPolicy     string
	FlattenCache   bool
	ExtractWorkers int
}

type SentryConfig struct {
	DSN     string
	Release string
}

type Options struct {
	Port     string
	LogLevel string
}

func (s *SentryConfig) IsEnabled() bool {
	return s.DSN != ""
}

var Config *ConfigStruct

func NewConfig() {
	libraryDir := getEnv("LIBRARY_DIR", "./song_library")

	config := &ConfigStruct{
		Library: LibraryConfig{
			Dir:            libraryDir,
			ItemsDir:       getEnv("ITEMS_DIR", filepath.Join(libraryDir, "U")),
			SubsetsDir:     getEnv("SUBSETS_DIR", filepath.Join(libraryDir, "subsets")),
			DBPath:         getEnv("DB_PATH", filepath.Join(libraryDir, ".playset.db")),
			LoadPolicy:     getLoadPolicy(),
			FlattenCache:   os.Getenv("FLATTEN_CACHE") == "true",
			ExtractWorkers: getExtractWorkers(),
		},
		Options: Options{
			Port:     getEnv("PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Sentry: SentryConfig{
			DSN:     os.Getenv("SENTRY_DSN"),
			Release: os.Getenv("RELEASE"),
		},
	}

	Config = config
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getLoadPolicy() string {
	policy := strings.ToLower(os.Getenv("LOAD_POLICY"))
	if policy == "abort" {
		return "abort"
	}
	return "skip"
}

func getExtractWorkers() int {
	workersStr := os.Getenv("EXTRACT_WORKERS")
	fallback := 2 * runtime.GOMAXPROCS(0)
	if fallback > 32 {
		fallback = 32
	}
	if workersStr == "" {
		return fallback
	}
	workers, err := strconv.Atoi(workersStr)
	if err != nil || workers <= 0 {
		return fallback
	}
	if workers > 64 {
		return 64 // Tag reading is I/O bound, more goroutines only add contention
	}
	return workers
}
