package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Remote struct {
		BaseURL           string
		RequestsPerSecond float64
	}
	Engine struct {
		PollInterval        time.Duration
		ReconcileInterval   time.Duration
		StallPolls          int
		DoneCleanupDelay    time.Duration
		FailureCleanupDelay time.Duration
		RetryBaseDelay      time.Duration
		RetryMaxDelay       time.Duration
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("DOWNBEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/downbeat.db")
	v.SetDefault("remote.baseurl", "http://localhost:7171")
	v.SetDefault("remote.requestspersecond", 0.0)
	v.SetDefault("engine.pollinterval", 500*time.Millisecond)
	v.SetDefault("engine.reconcileinterval", 10*time.Second)
	v.SetDefault("engine.stallpolls", 600)
	v.SetDefault("engine.donecleanupdelay", 3*time.Second)
	v.SetDefault("engine.failurecleanupdelay", 20*time.Second)
	v.SetDefault("engine.retrybasedelay", 2*time.Second)
	v.SetDefault("engine.retrymaxdelay", 30*time.Second)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
