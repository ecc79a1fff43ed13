package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	EncryptionKey      string
	ElectionServiceURL string
	Currency           string

	AutoApproveThreshold float64
	MinimumWithdrawal    float64

	VideoCompletionPercent int

	RapidVoteWindowMinutes int
	RapidVoteLimit         int
	IPHopWindowMinutes     int
	IPHopLimit             int

	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
}

func Default() Config {
	return Config{
		ElectionServiceURL:       "http://localhost:3005/api",
		Currency:                 "USD",
		AutoApproveThreshold:     100,
		MinimumWithdrawal:        10,
		VideoCompletionPercent:   80,
		RapidVoteWindowMinutes:   5,
		RapidVoteLimit:           5,
		IPHopWindowMinutes:       60,
		IPHopLimit:               3,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		cfg.EncryptionKey = raw
	}
	if raw := os.Getenv("ELECTION_SERVICE_URL"); raw != "" {
		cfg.ElectionServiceURL = raw
	}
	if raw := os.Getenv("WALLET_CURRENCY"); raw != "" {
		cfg.Currency = raw
	}
	if raw := os.Getenv("WITHDRAWAL_AUTO_APPROVE_THRESHOLD"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.AutoApproveThreshold = value
		}
	}
	if raw := os.Getenv("MINIMUM_WITHDRAWAL"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.MinimumWithdrawal = value
		}
	}
	if raw := os.Getenv("VIDEO_COMPLETION_PERCENT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 && value <= 100 {
			cfg.VideoCompletionPercent = value
		}
	}
	if raw := os.Getenv("RAPID_VOTE_WINDOW_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RapidVoteWindowMinutes = value
		}
	}
	if raw := os.Getenv("RAPID_VOTE_LIMIT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RapidVoteLimit = value
		}
	}
	if raw := os.Getenv("IP_HOP_WINDOW_MINUTES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.IPHopWindowMinutes = value
		}
	}
	if raw := os.Getenv("IP_HOP_LIMIT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.IPHopLimit = value
		}
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	return cfg
}
