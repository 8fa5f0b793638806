package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/ScanDesk/internal/api"
	"github.com/BTreeMap/ScanDesk/internal/flow"
	"github.com/BTreeMap/ScanDesk/internal/genai"
	"github.com/BTreeMap/ScanDesk/internal/lockfile"
	"github.com/BTreeMap/ScanDesk/internal/metrics"
	"github.com/BTreeMap/ScanDesk/internal/routing"
	"github.com/BTreeMap/ScanDesk/internal/store"
	"github.com/BTreeMap/ScanDesk/internal/tools"
	"github.com/BTreeMap/ScanDesk/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ScanDesk state data
	DefaultStateDir = "/var/lib/scandesk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "scandesk.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ScanDesk with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "backend_url", *flags.backendURL, "api_addr", *flags.apiAddr)
	if err := run(flags); err != nil {
		slog.Error("ScanDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ScanDesk exited successfully")
}

func run(flags Flags) error {
	// File-backed state directories admit exactly one daemon at a time.
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	matrix, err := routing.NewMatrix()
	if err != nil {
		// A malformed routing table is a configuration error, fatal at startup.
		return err
	}
	enforcer := routing.NewEnforcer(matrix)

	classifier := buildClassifier(flags)
	executor, err := tools.NewRESTExecutor(*flags.backendURL)
	if err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	instruments := metrics.NewInstruments(registry)

	conversationStore, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conversationStore.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation store", "error", closeErr)
		}
	}()

	orchestrator := flow.NewOrchestrator(matrix, enforcer, classifier, executor,
		flow.WithRecorder(recorder),
		flow.WithInstruments(instruments),
	)

	server := api.NewServer(orchestrator, conversationStore,
		api.WithRecorder(recorder),
		api.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	return server.Run(*flags.apiAddr)
}

// buildClassifier constructs the OpenAI-backed classifier, degrading to the
// disabled client when no API key is configured.
func buildClassifier(flags Flags) genai.ClientInterface {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured, intent classification disabled")
		return genai.NewDisabledClient()
	}
	client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Warn("Failed to initialize GenAI client, intent classification disabled", "error", err)
		return genai.NewDisabledClient()
	}
	return client
}

// buildStore selects the persistence backend from the DSN and wraps it so a
// backend outage degrades to in-memory operation instead of failing turns.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}

	var (
		primary store.Store
		err     error
	)
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		primary, err = store.NewPostgresStore(store.WithDSN(dsn))
	case "redis":
		slog.Debug("Detected Redis DSN, configuring Redis store", "dsn_set", true)
		primary, err = store.NewRedisStoreFromURL(dsn)
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		primary, err = store.NewSQLiteStore(store.WithDSN(dsn))
	}
	if err != nil {
		slog.Warn("Persistence backend unavailable, falling back to in-memory store", "error", err)
		return store.NewInMemoryStore(), nil
	}
	return store.NewResilientStore(primary), nil
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN string
	StateDir    string
	OpenAIKey   string
	BackendURL  string
	APIAddr     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir   *string
	dbDSN      *string
	openaiKey  *string
	backendURL *string
	apiAddr    *string
}

// initializeLogger sets up structured logging; SCANDESK_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SCANDESK_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("SCANDESK_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		BackendURL:  os.Getenv("SCANDESK_BACKEND_URL"),
		APIAddr:     os.Getenv("API_ADDR"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SCANDESK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseDSN != "",
		"SCANDESK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SCANDESK_BACKEND_URL", config.BackendURL,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for ScanDesk data (overrides $SCANDESK_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseDSN, "conversation store DSN: SQLite path, postgres:// or redis:// URL (overrides $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		backendURL: flag.String("backend-url", config.BackendURL, "patient records backend base URL (overrides $SCANDESK_BACKEND_URL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"backendURL", *flags.backendURL,
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "sqlite" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}
