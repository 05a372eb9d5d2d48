package config

import "os"

// Config carries the environment-driven settings for the client and the
// stub server. Call godotenv.Load in main before Load to pick up .env files.
type Config struct {
	// Client side
	APIBaseURL string // REST endpoint base, e.g. http://localhost:8080
	SocketURL  string // realtime channel endpoint, e.g. ws://localhost:8080/ws
	Token      string // session JWT; fetched from the stub server when empty
	CachePath  string // sqlite file for the offline cache

	// Stub server side
	ListenAddr string
	JWTSecret  string
	RedisAddr  string // optional cross-instance fanout; empty disables it
}

// Load reads the configuration from the environment, applying defaults
// suitable for local development against the stub server.
func Load() Config {
	return Config{
		APIBaseURL: getenv("CHAT_API_URL", "http://localhost:8080"),
		SocketURL:  getenv("CHAT_SOCKET_URL", "ws://localhost:8080/ws"),
		Token:      os.Getenv("CHAT_TOKEN"),
		CachePath:  getenv("CHAT_CACHE_PATH", "chatcache.db"),
		ListenAddr: getenv("CHAT_LISTEN_ADDR", ":8080"),
		JWTSecret:  getenv("CHAT_JWT_SECRET", "dev-only-secret"),
		RedisAddr:  os.Getenv("CHAT_REDIS_ADDR"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
