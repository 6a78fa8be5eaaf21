// Package config loads swarmhub's runtime configuration: sane defaults,
// an optional key=value file, and environment variables, in that order of
// increasing precedence.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in the external interfaces (the
// datagram/stream addresses, chunk and worker sizing) plus the timeouts
// named in the concurrency model.
type Config struct {
	TrackerAddr string // host:port the tracker listens on / clients dial
	SeederBind  string // host:port the seeder listens on; port 0 = ephemeral
	DownloadDir string
	ChunkSize   int
	Parallelism int
	ServerID    string // stable identity string for this process; defaults to the hostname

	KeepaliveInterval time.Duration
	LivenessTimeout   time.Duration
	ReapInterval      time.Duration
	ServeTimeout      time.Duration
	ChunkTimeout      time.Duration
	DiscoveryTimeout  time.Duration

	RetryBudgetPerChunk int
	MaxInflightServes   int

	// DBDSN, when set, enables the tracker's best-effort audit sink.
	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int
}

// Load builds a Config from defaults, then an optional key=value file at
// path (ignored if it does not exist), then the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{
		TrackerAddr: "0.0.0.0:5000",
		SeederBind:  "0.0.0.0:0",
		DownloadDir: "./downloads",
		ChunkSize:   512 << 10,
		Parallelism: 8,
		ServerID:    getHostname(),

		KeepaliveInterval: 30 * time.Second,
		LivenessTimeout:   90 * time.Second,
		ReapInterval:      30 * time.Second,
		ServeTimeout:      60 * time.Second,
		ChunkTimeout:      30 * time.Second,
		DiscoveryTimeout:  5 * time.Second,

		RetryBudgetPerChunk: 5,
		MaxInflightServes:   64,

		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
	}

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	cfg.loadFromEnv()

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	const maxParallelism = 64
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Parallelism > maxParallelism {
		cfg.Parallelism = maxParallelism
	}
	const maxInflight = 64
	if cfg.MaxInflightServes <= 0 {
		cfg.MaxInflightServes = 1
	}
	if cfg.MaxInflightServes > maxInflight {
		cfg.MaxInflightServes = maxInflight
	}

	return cfg, nil
}

func (cfg *Config) loadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		cfg.applyKey(strings.ToUpper(key), value)
	}
	return scanner.Err()
}

func (cfg *Config) loadFromEnv() {
	for _, key := range []string{
		"TRACKER_ADDR", "SEEDER_BIND", "DOWNLOAD_DIR", "CHUNK_SIZE", "PARALLELISM",
		"SERVER_ID", "KEEPALIVE_INTERVAL", "LIVENESS_TIMEOUT", "REAP_INTERVAL",
		"SERVE_TIMEOUT", "CHUNK_TIMEOUT", "DISCOVERY_TIMEOUT",
		"RETRY_BUDGET_PER_CHUNK", "MAX_INFLIGHT_SERVES", "DB_DSN",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	} {
		if v := os.Getenv(key); v != "" {
			cfg.applyKey(key, v)
		}
	}
}

func (cfg *Config) applyKey(key, value string) {
	switch key {
	case "TRACKER_ADDR":
		cfg.TrackerAddr = value
	case "SEEDER_BIND":
		cfg.SeederBind = value
	case "DOWNLOAD_DIR":
		cfg.DownloadDir = value
	case "SERVER_ID":
		cfg.ServerID = value
	case "DB_DSN":
		cfg.DBDSN = value
	case "CHUNK_SIZE":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.ChunkSize = n
		}
	case "PARALLELISM":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.Parallelism = n
		}
	case "RETRY_BUDGET_PER_CHUNK":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.RetryBudgetPerChunk = n
		}
	case "MAX_INFLIGHT_SERVES":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.MaxInflightServes = n
		}
	case "DB_MAX_OPEN_CONNS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.DBMaxOpenConns = n
		}
	case "DB_MAX_IDLE_CONNS":
		if n, err := strconv.Atoi(value); err == nil {
			cfg.DBMaxIdleConns = n
		}
	case "KEEPALIVE_INTERVAL":
		setDuration(&cfg.KeepaliveInterval, value)
	case "LIVENESS_TIMEOUT":
		setDuration(&cfg.LivenessTimeout, value)
	case "REAP_INTERVAL":
		setDuration(&cfg.ReapInterval, value)
	case "SERVE_TIMEOUT":
		setDuration(&cfg.ServeTimeout, value)
	case "CHUNK_TIMEOUT":
		setDuration(&cfg.ChunkTimeout, value)
	case "DISCOVERY_TIMEOUT":
		setDuration(&cfg.DiscoveryTimeout, value)
	}
}

// setDuration accepts either a Go duration string ("30s") or a bare integer
// taken as seconds, matching the kind of value an operator would reach for
// first in an env var.
func setDuration(dst *time.Duration, value string) {
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(value); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// AuditEnabled reports whether a DB DSN was configured for the tracker's
// best-effort audit sink.
func (cfg *Config) AuditEnabled() bool {
	return cfg.DBDSN != ""
}
