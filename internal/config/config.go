package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	FrontendOrigin string
	LogLevel       slog.Level

	LlamaAPIBase       string
	StablecoinsAPIBase string
	FetchRetries       int
	FetchRetryDelay    time.Duration
	FetchTimeout       time.Duration
	DetailBatchSize    int
	DetailBatchPause   time.Duration
	DetailMinTVL       float64
	DetailMaxChains    int
	RefreshSchedule    string

	DatabaseURL      string
	HistoryRetention time.Duration
	RedisURL         string
	RedisPassword    string
	RefreshLockTTL   time.Duration
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		LogLevel:       envLevel("LOG_LEVEL", slog.LevelInfo),

		LlamaAPIBase:       strings.TrimRight(envOr("LLAMA_API_BASE", "https://api.llama.fi"), "/"),
		StablecoinsAPIBase: strings.TrimRight(envOr("STABLECOINS_API_BASE", "https://stablecoins.llama.fi"), "/"),
		FetchRetries:       envInt("FETCH_RETRIES", 3),
		FetchRetryDelay:    envDuration("FETCH_RETRY_DELAY", time.Second),
		FetchTimeout:       envDuration("FETCH_TIMEOUT", 30*time.Second),
		DetailBatchSize:    envInt("DETAIL_BATCH_SIZE", 5),
		DetailBatchPause:   envDuration("DETAIL_BATCH_PAUSE", 200*time.Millisecond),
		DetailMinTVL:       envFloat("DETAIL_MIN_TVL", 100_000_000),
		DetailMaxChains:    envInt("DETAIL_MAX_CHAINS", 20),
		RefreshSchedule:    envOr("REFRESH_SCHEDULE", "@every 5m"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HistoryRetention: envDuration("HISTORY_RETENTION", 30*24*time.Hour),
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RefreshLockTTL:   envDuration("REFRESH_LOCK_TTL", 2*time.Minute),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	if _, err := client.Auth().UniversalAuthLogin(clientID, clientSecret); err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"DATABASE_URL":   &cfg.DatabaseURL,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var wins
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		slog.Warn("invalid number env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level, using default", "key", key, "value", v)
		return fallback
	}
	return l
}
