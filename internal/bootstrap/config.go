package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string

	SignalURL  string
	ControlURL string

	LogLevel string

	ReconnectDelay time.Duration
	MaxReconnects  int

	CaptureInterval time.Duration

	RTCEnabled    bool
	RTCICEServers []ICEServerConfig
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		SignalURL:  getEnv("SIGNAL_URL", "ws://localhost:8080/ws"),
		ControlURL: getEnv("CONTROL_URL", "http://localhost:8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		ReconnectDelay: time.Duration(getEnvInt("RECONNECT_DELAY_MS", 3000)) * time.Millisecond,
		MaxReconnects:  getEnvInt("MAX_RECONNECTS", 5),

		CaptureInterval: time.Duration(getEnvInt("CAPTURE_INTERVAL_MS", 1000)) * time.Millisecond,

		RTCEnabled:    getEnv("RTC_ENABLED", "false") == "true",
		RTCICEServers: parseICEServers(getEnv("RTC_ICE_SERVERS", "stun:stun.l.google.com:19302")),
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseICEServers(envValue string) []ICEServerConfig {
	var servers []ICEServerConfig
	for _, url := range strings.Split(envValue, ",") {
		url = strings.TrimSpace(url)
		if url != "" {
			servers = append(servers, ICEServerConfig{URLs: []string{url}})
		}
	}

	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}
