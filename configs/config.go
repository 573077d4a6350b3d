package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Config struct {
	Twitter   ProviderCredentials
	Instagram ProviderCredentials
	Facebook  ProviderCredentials
	Linkedin  ProviderCredentials

	PostgresURI string
	RedisURI    string

	R2 R2

	EncryptionKey string
	SecretKey     string
	ServiceAPIKey string

	StateTTL               time.Duration
	RefreshThreshold       time.Duration
	RefreshInterval        time.Duration
	RefreshRetryAttempts   int
	RefreshRetryBackoff    time.Duration
	DispatchInterval       time.Duration
	DispatchConcurrency    int
	PublishMaxAttempts     int
	PublishRetryBackoff    time.Duration
	RateLimitPostsPerHour  int
	RateLimitPostsPerDay   int
	CredentialSafetyMargin time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Twitter: ProviderCredentials{
			ClientID:     getEnv("TWITTER_CLIENT_ID", ""),
			ClientSecret: getEnv("TWITTER_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TWITTER_REDIRECT_URI", ""),
		},
		Instagram: ProviderCredentials{
			ClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		},
		Facebook: ProviderCredentials{
			ClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
			ClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("FACEBOOK_REDIRECT_URI", ""),
		},
		Linkedin: ProviderCredentials{
			ClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
			ClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("LINKEDIN_REDIRECT_URI", ""),
		},
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SecretKey:     getEnv("SECRET_KEY", ""),
		ServiceAPIKey: getEnv("SERVICE_API_KEY", ""),

		StateTTL:               getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		RefreshThreshold:       getEnvDuration("TOKEN_REFRESH_THRESHOLD", 30*time.Minute),
		RefreshInterval:        getEnvDuration("TOKEN_REFRESH_INTERVAL", 10*time.Minute),
		RefreshRetryAttempts:   getEnvInt("TOKEN_REFRESH_RETRY_ATTEMPTS", 3),
		RefreshRetryBackoff:    getEnvDuration("TOKEN_REFRESH_RETRY_BACKOFF", time.Minute),
		DispatchInterval:       getEnvDuration("DISPATCH_INTERVAL", time.Minute),
		DispatchConcurrency:    getEnvInt("MAX_CONCURRENT_POSTS", 5),
		PublishMaxAttempts:     getEnvInt("MAX_RETRY_ATTEMPTS", 3),
		PublishRetryBackoff:    getEnvDuration("RETRY_BACKOFF", time.Minute),
		RateLimitPostsPerHour:  getEnvInt("RATE_LIMIT_POSTS_PER_HOUR", 50),
		RateLimitPostsPerDay:   getEnvInt("RATE_LIMIT_POSTS_PER_DAY", 200),
		CredentialSafetyMargin: getEnvDuration("CREDENTIAL_SAFETY_MARGIN", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
