// Package config loads the key/value configuration table of spec.md §6
// through spf13/viper: a `key=value` file (the "props" format, matching
// Java-properties-style `#`-comment files) overridden by UVHTTP_-prefixed
// environment variables. Grounded on nabbar-golib/viper's wrapper around
// the same library, adapted to uvhttp's flat key table instead of that
// library's nested component tree.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yourusername/uvhttp/pkg/uvhttp/server"
)

// Keys, named exactly as spec.md §6 lists them.
const (
	KeyMaxConnections           = "max_connections"
	KeyReadBufferSize           = "read_buffer_size"
	KeyBacklog                  = "backlog"
	KeyKeepaliveTimeout          = "keepalive_timeout"
	KeyRequestTimeout           = "request_timeout"
	KeyMaxBodySize               = "max_body_size"
	KeyMaxHeaderSize             = "max_header_size"
	KeyMaxURLSize                = "max_url_size"
	KeyMaxRequestsPerConnection = "max_requests_per_connection"
	KeyRateLimitWindow          = "rate_limit_window"
	KeyEnableTLS                = "enable_tls"
	KeyMemoryPoolSize            = "memory_pool_size"
	KeyLogLevel                  = "log_level"
	KeyLogFilePath               = "log_file_path"

	envPrefix = "UVHTTP"
)

// Config is the fully-resolved configuration, one field per spec.md §6 key.
type Config struct {
	MaxConnections           int
	ReadBufferSize           int
	Backlog                  int
	KeepaliveTimeout         time.Duration
	RequestTimeout           time.Duration
	MaxBodySize              int64
	MaxHeaderSize            int
	MaxURLSize               int
	MaxRequestsPerConnection int
	RateLimitWindow          time.Duration
	EnableTLS                bool
	MemoryPoolSize           int // advisory; no component currently consumes it
	LogLevel                 int
	LogFilePath              string
}

func defaults() Config {
	sc := server.DefaultConfig()
	return Config{
		MaxConnections:           sc.MaxConnections,
		ReadBufferSize:           sc.ReadBufferSize,
		Backlog:                  sc.Backlog,
		KeepaliveTimeout:         sc.KeepaliveTimeout,
		RequestTimeout:           sc.RequestTimeout,
		MaxBodySize:              sc.MaxBodySize,
		MaxHeaderSize:            sc.MaxHeaderSize,
		MaxURLSize:               sc.MaxURLSize,
		MaxRequestsPerConnection: sc.MaxRequestsPerConnection,
		RateLimitWindow:          sc.RateLimitWindow,
		EnableTLS:                sc.EnableTLS,
		MemoryPoolSize:           0,
		LogLevel:                 sc.LogLevel,
		LogFilePath:              "",
	}
}

// Load reads path (key=value, `#` comments) if non-empty, then applies any
// UVHTTP_-prefixed environment variable on top, per spec.md §6.
func Load(path string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigType("props")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	bindDefault := func(key string, value any) {
		v.SetDefault(key, value)
		// BindEnv registers the UVHTTP_<KEY> lookup explicitly so
		// AutomaticEnv's case folding can't miss an underscore-heavy key.
		v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key))
	}
	bindDefault(KeyMaxConnections, cfg.MaxConnections)
	bindDefault(KeyReadBufferSize, cfg.ReadBufferSize)
	bindDefault(KeyBacklog, cfg.Backlog)
	bindDefault(KeyKeepaliveTimeout, int(cfg.KeepaliveTimeout/time.Second))
	bindDefault(KeyRequestTimeout, int(cfg.RequestTimeout/time.Second))
	bindDefault(KeyMaxBodySize, cfg.MaxBodySize)
	bindDefault(KeyMaxHeaderSize, cfg.MaxHeaderSize)
	bindDefault(KeyMaxURLSize, cfg.MaxURLSize)
	bindDefault(KeyMaxRequestsPerConnection, cfg.MaxRequestsPerConnection)
	bindDefault(KeyRateLimitWindow, int(cfg.RateLimitWindow/time.Second))
	bindDefault(KeyEnableTLS, cfg.EnableTLS)
	bindDefault(KeyMemoryPoolSize, cfg.MemoryPoolSize)
	bindDefault(KeyLogLevel, cfg.LogLevel)
	bindDefault(KeyLogFilePath, cfg.LogFilePath)

	cfg.MaxConnections = v.GetInt(KeyMaxConnections)
	cfg.ReadBufferSize = v.GetInt(KeyReadBufferSize)
	cfg.Backlog = v.GetInt(KeyBacklog)
	cfg.KeepaliveTimeout = time.Duration(v.GetInt(KeyKeepaliveTimeout)) * time.Second
	cfg.RequestTimeout = time.Duration(v.GetInt(KeyRequestTimeout)) * time.Second
	cfg.MaxBodySize = v.GetInt64(KeyMaxBodySize)
	cfg.MaxHeaderSize = v.GetInt(KeyMaxHeaderSize)
	cfg.MaxURLSize = v.GetInt(KeyMaxURLSize)
	cfg.MaxRequestsPerConnection = v.GetInt(KeyMaxRequestsPerConnection)
	cfg.RateLimitWindow = time.Duration(v.GetInt(KeyRateLimitWindow)) * time.Second
	cfg.EnableTLS = v.GetBool(KeyEnableTLS)
	cfg.MemoryPoolSize = v.GetInt(KeyMemoryPoolSize)
	cfg.LogLevel = v.GetInt(KeyLogLevel)
	cfg.LogFilePath = v.GetString(KeyLogFilePath)

	return cfg, nil
}

// Validate applies the range checks spec.md §6 implies for each key.
func (c Config) Validate() error {
	if c.MaxConnections < 1 || c.MaxConnections > 65535 {
		return fmt.Errorf("config: %s must be in 1..65535, got %d", KeyMaxConnections, c.MaxConnections)
	}
	if c.ReadBufferSize < 1024 || c.ReadBufferSize > 1<<20 {
		return fmt.Errorf("config: %s must be in 1KiB..1MiB, got %d", KeyReadBufferSize, c.ReadBufferSize)
	}
	if c.MaxBodySize < 0 || c.MaxBodySize > 100<<20 {
		return fmt.Errorf("config: %s must be <= 100MiB, got %d", KeyMaxBodySize, c.MaxBodySize)
	}
	if c.LogLevel < 0 || c.LogLevel > 5 {
		return fmt.Errorf("config: %s must be in 0..5, got %d", KeyLogLevel, c.LogLevel)
	}
	return nil
}

// ToServerConfig converts the loaded configuration into the subset
// server.Server.Configure consumes.
func (c Config) ToServerConfig() server.Config {
	return server.Config{
		MaxConnections:           c.MaxConnections,
		ReadBufferSize:           c.ReadBufferSize,
		Backlog:                  c.Backlog,
		KeepaliveTimeout:         c.KeepaliveTimeout,
		RequestTimeout:           c.RequestTimeout,
		MaxBodySize:              c.MaxBodySize,
		MaxHeaderSize:            c.MaxHeaderSize,
		MaxHeaderCount:           server.DefaultMaxHeaderCount,
		MaxURLSize:               c.MaxURLSize,
		MaxRequestsPerConnection: c.MaxRequestsPerConnection,
		RateLimitWindow:          c.RateLimitWindow,
		EnableTLS:                c.EnableTLS,
		LogLevel:                 c.LogLevel,
	}
}
