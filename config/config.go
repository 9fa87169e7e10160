package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"scrimbet/database"
	"scrimbet/games"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Storage backends
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=trace debug info warn error"`

	// Storage configuration
	StorageBackend string `validate:"oneof=file postgres"`
	DataFile       string `validate:"required_if=StorageBackend file"`
	DatabaseURL    string `validate:"required_if=StorageBackend postgres"`
	DatabaseName   string
	FlushInterval  time.Duration `validate:"min=1s"`

	// Economy
	MinBet             int64  `validate:"min=1"`
	AttendanceReward   int64  `validate:"min=0"`
	AttendanceTimezone string `validate:"required"`
	AdminIDs           []int64

	// Per user per game cooldowns
	MinesCooldown time.Duration `validate:"min=0"`
	CrashCooldown time.Duration `validate:"min=0"`
	RPSCooldown   time.Duration `validate:"min=0"`

	// Mines
	MinesCells      int           `validate:"min=2"`
	MinesBombs      int           `validate:"min=1,ltfield=MinesCells"`
	MinesPool       string        `validate:"required"`
	MinesPolicy     string        `validate:"oneof=multiplicative additive"`
	MinesMinReveals int           `validate:"min=0"`
	MinesTimeout    time.Duration `validate:"min=1s"`

	// Crash
	CrashBuckets string        // empty means the built-in table
	CrashBase    string        `validate:"required,numeric"`
	CrashGrowth  string        `validate:"required,numeric"`
	CrashCeiling string        `validate:"required,numeric"`
	CrashTick    time.Duration `validate:"min=10ms"`

	// Rock paper scissors
	RPSWinLow  string        `validate:"required,numeric"`
	RPSWinHigh string        `validate:"required,numeric"`
	RPSTimeout time.Duration `validate:"min=1s"`

	// Matches
	MatchCapacity     int           `validate:"min=2"`
	BettingWindow     time.Duration `validate:"min=1s"`
	ResultTimeout     time.Duration `validate:"min=1s"`
	FinishedRetention time.Duration `validate:"min=0"`
	WagerRetention    time.Duration `validate:"min=0"`

	// Leaderboard
	LeaderboardMinMatches int64 `validate:"min=1"`
	LeaderboardSize       int   `validate:"min=1"`

	// NATS configuration; empty disables forwarding
	NATSServers string

	// Metrics exporter
	MetricsExporter string `validate:"oneof=none console"`

	// Discord log channel; both must be set to post settlement lines
	DiscordToken string
	LogChannelID string

	// RandomSeed fixes the game random source; zero seeds from the clock
	RandomSeed int64
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL combines the base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Validate checks struct tags and the game settings that tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.AttendanceLocation(); err != nil {
		return err
	}
	if _, err := c.MinesConfig(); err != nil {
		return err
	}
	if _, err := c.CrashConfig(); err != nil {
		return err
	}
	if _, err := c.RPSConfig(); err != nil {
		return err
	}
	return nil
}

// IsAdmin reports whether a user may run privileged match and economy commands
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AttendanceLocation loads the timezone attendance dates are computed in
func (c *Config) AttendanceLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AttendanceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid attendance timezone %q: %w", c.AttendanceTimezone, err)
	}
	return loc, nil
}

// MinesConfig builds the board settings
func (c *Config) MinesConfig() (games.MinesConfig, error) {
	pool, err := games.ParseMultipliers(c.MinesPool)
	if err != nil {
		return games.MinesConfig{}, fmt.Errorf("invalid MINES_POOL: %w", err)
	}
	cfg := games.MinesConfig{
		Cells:               c.MinesCells,
		Bombs:               c.MinesBombs,
		Pool:                pool,
		Policy:              games.AccumulationPolicy(c.MinesPolicy),
		SumPlaces:           4,
		MinRevealsToCashOut: c.MinesMinReveals,
	}
	if err := cfg.Validate(); err != nil {
		return games.MinesConfig{}, fmt.Errorf("invalid mines configuration: %w", err)
	}
	return cfg, nil
}

// CrashConfig builds the round settings
func (c *Config) CrashConfig() (games.CrashConfig, error) {
	cfg := games.DefaultCrashConfig()
	if c.CrashBuckets != "" {
		buckets, err := games.ParseCrashBuckets(c.CrashBuckets)
		if err != nil {
			return games.CrashConfig{}, fmt.Errorf("invalid CRASH_BUCKETS: %w", err)
		}
		cfg.Buckets = buckets
	}

	var err error
	if cfg.Base, err = decimal.NewFromString(c.CrashBase); err != nil {
		return games.CrashConfig{}, fmt.Errorf("invalid CRASH_BASE: %w", err)
	}
	if cfg.Growth, err = decimal.NewFromString(c.CrashGrowth); err != nil {
		return games.CrashConfig{}, fmt.Errorf("invalid CRASH_GROWTH: %w", err)
	}
	if cfg.Ceiling, err = decimal.NewFromString(c.CrashCeiling); err != nil {
		return games.CrashConfig{}, fmt.Errorf("invalid CRASH_CEILING: %w", err)
	}
	cfg.Tick = c.CrashTick

	if err := cfg.Validate(); err != nil {
		return games.CrashConfig{}, fmt.Errorf("invalid crash configuration: %w", err)
	}
	return cfg, nil
}

// RPSConfig builds the rock paper scissors settings
func (c *Config) RPSConfig() (games.RPSConfig, error) {
	low, err := decimal.NewFromString(c.RPSWinLow)
	if err != nil {
		return games.RPSConfig{}, fmt.Errorf("invalid RPS_WIN_LOW: %w", err)
	}
	high, err := decimal.NewFromString(c.RPSWinHigh)
	if err != nil {
		return games.RPSConfig{}, fmt.Errorf("invalid RPS_WIN_HIGH: %w", err)
	}
	cfg := games.RPSConfig{WinLow: low, WinHigh: high}
	if err := cfg.Validate(); err != nil {
		return games.RPSConfig{}, err
	}
	return cfg, nil
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := defaults()

	config.Environment = getEnvWithDefault("ENVIRONMENT", config.Environment)
	config.LogLevel = strings.ToLower(getEnvWithDefault("LOG_LEVEL", config.LogLevel))

	config.StorageBackend = getEnvWithDefault("STORAGE_BACKEND", config.StorageBackend)
	config.DataFile = getEnvWithDefault("DATA_FILE", config.DataFile)
	config.DatabaseURL = os.Getenv("DATABASE_URL")
	config.DatabaseName = os.Getenv("DATABASE_NAME")

	config.AttendanceTimezone = getEnvWithDefault("ATTENDANCE_TIMEZONE", config.AttendanceTimezone)
	config.MinesPool = getEnvWithDefault("MINES_POOL", config.MinesPool)
	config.MinesPolicy = getEnvWithDefault("MINES_POLICY", config.MinesPolicy)
	config.CrashBuckets = os.Getenv("CRASH_BUCKETS")
	config.CrashBase = getEnvWithDefault("CRASH_BASE", config.CrashBase)
	config.CrashGrowth = getEnvWithDefault("CRASH_GROWTH", config.CrashGrowth)
	config.CrashCeiling = getEnvWithDefault("CRASH_CEILING", config.CrashCeiling)
	config.RPSWinLow = getEnvWithDefault("RPS_WIN_LOW", config.RPSWinLow)
	config.RPSWinHigh = getEnvWithDefault("RPS_WIN_HIGH", config.RPSWinHigh)

	config.NATSServers = os.Getenv("NATS_SERVERS")
	config.MetricsExporter = getEnvWithDefault("METRICS_EXPORTER", config.MetricsExporter)
	config.DiscordToken = os.Getenv("DISCORD_TOKEN")
	config.LogChannelID = os.Getenv("LOG_CHANNEL_ID")

	ints := []struct {
		key    string
		target *int64
	}{
		{"MIN_BET", &config.MinBet},
		{"ATTENDANCE_REWARD", &config.AttendanceReward},
		{"RANDOM_SEED", &config.RandomSeed},
		{"LEADERBOARD_MIN_MATCHES", &config.LeaderboardMinMatches},
	}
	for _, v := range ints {
		if raw := os.Getenv(v.key); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", v.key, err)
			}
			*v.target = parsed
		}
	}

	smallInts := []struct {
		key    string
		target *int
	}{
		{"MINES_CELLS", &config.MinesCells},
		{"MINES_BOMBS", &config.MinesBombs},
		{"MINES_MIN_REVEALS", &config.MinesMinReveals},
		{"MATCH_CAPACITY", &config.MatchCapacity},
		{"LEADERBOARD_SIZE", &config.LeaderboardSize},
	}
	for _, v := range smallInts {
		if raw := os.Getenv(v.key); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", v.key, err)
			}
			*v.target = parsed
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"FLUSH_INTERVAL", &config.FlushInterval},
		{"MINES_COOLDOWN", &config.MinesCooldown},
		{"CRASH_COOLDOWN", &config.CrashCooldown},
		{"RPS_COOLDOWN", &config.RPSCooldown},
		{"MINES_TIMEOUT", &config.MinesTimeout},
		{"CRASH_TICK", &config.CrashTick},
		{"RPS_TIMEOUT", &config.RPSTimeout},
		{"BETTING_WINDOW", &config.BettingWindow},
		{"RESULT_TIMEOUT", &config.ResultTimeout},
		{"FINISHED_RETENTION", &config.FinishedRetention},
		{"WAGER_RETENTION", &config.WagerRetention},
	}
	for _, v := range durations {
		if raw := os.Getenv(v.key); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", v.key, err)
			}
			*v.target = parsed
		}
	}

	// Parse admin user IDs
	if adminIDs := os.Getenv("ADMIN_USER_IDS"); adminIDs != "" {
		for _, idStr := range strings.Split(adminIDs, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr == "" {
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid ADMIN_USER_IDS entry %q: %w", idStr, err)
			}
			config.AdminIDs = append(config.AdminIDs, id)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Environment:           "development",
		LogLevel:              "info",
		StorageBackend:        StorageFile,
		DataFile:              "data/accounts.json",
		FlushInterval:         30 * time.Second,
		MinBet:                1000,
		AttendanceReward:      1500,
		AttendanceTimezone:    "Asia/Seoul",
		MinesCooldown:         7 * time.Second,
		CrashCooldown:         10 * time.Second,
		RPSCooldown:           5 * time.Second,
		MinesCells:            16,
		MinesBombs:            6,
		MinesPool:             "0.5,0.5,0.6,0.6,0.7,0.8,0.9,1.0,1.5,2.0",
		MinesPolicy:           string(games.PolicyAdditive),
		MinesMinReveals:       1,
		MinesTimeout:          120 * time.Second,
		CrashBase:             "0.50",
		CrashGrowth:           "1.045",
		CrashCeiling:          "30.0",
		CrashTick:             250 * time.Millisecond,
		RPSWinLow:             "1.10",
		RPSWinHigh:            "2.00",
		RPSTimeout:            15 * time.Second,
		MatchCapacity:         10,
		BettingWindow:         210 * time.Second,
		ResultTimeout:         3 * time.Hour,
		FinishedRetention:     30 * time.Minute,
		WagerRetention:        10 * time.Minute,
		LeaderboardMinMatches: 20,
		LeaderboardSize:       20,
		MetricsExporter:       "none",
	}
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a config with the production defaults, a UTC
// attendance day and no cooldowns
func NewTestConfig() *Config {
	cfg := defaults()
	cfg.Environment = "test"
	cfg.AttendanceTimezone = "UTC"
	cfg.MinesCooldown = 0
	cfg.CrashCooldown = 0
	cfg.RPSCooldown = 0
	cfg.AdminIDs = []int64{999999}
	return cfg
}
