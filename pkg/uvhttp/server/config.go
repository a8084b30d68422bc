package server

import (
	"fmt"
	"time"
)

// Config mirrors the configuration keys of spec.md §6/§4.9, independent of
// how they were loaded (file, env, or set directly in code — see package
// config for the viper-backed loader that produces one of these).
type Config struct {
	MaxConnections           int
	ReadBufferSize           int
	Backlog                  int
	KeepaliveTimeout         time.Duration
	RequestTimeout           time.Duration
	MaxBodySize              int64
	MaxHeaderSize            int // per-header byte cap, spec.md §6's max_header_size
	MaxHeaderCount           int // header count cap, spec.md §3's max_headers
	MaxURLSize               int
	MaxRequestsPerConnection int
	RateLimitWindow          time.Duration
	RateLimitMaxRequests     int
	EnableTLS                bool
	LogLevel                 int
}

// DefaultMaxHeaderCount is spec.md §3's "typical 64" header count cap. It
// has no dedicated key in spec.md §6's configuration table, unlike
// MaxHeaderSize, so it is not exposed through pkg/uvhttp/config.
const DefaultMaxHeaderCount = 64

// DefaultConfig matches the recommended defaults of spec.md §4.9.
func DefaultConfig() Config {
	return Config{
		MaxConnections:           500,
		ReadBufferSize:           8 * 1024,
		Backlog:                  128,
		KeepaliveTimeout:         30 * time.Second,
		RequestTimeout:           60 * time.Second,
		MaxBodySize:              1 << 20,
		MaxHeaderSize:            8 * 1024,
		MaxHeaderCount:           DefaultMaxHeaderCount,
		MaxURLSize:               8 * 1024,
		MaxRequestsPerConnection: 100,
		RateLimitWindow:          60 * time.Second,
		RateLimitMaxRequests:     0, // 0 = rate limiting disabled until EnableRateLimit is called
		EnableTLS:                false,
		LogLevel:                 3,
	}
}

// Validate rejects configurations outside the ranges spec.md §6 names,
// returning a plain error that names the offending key (Config validation
// never reaches the wire, so no http11 status class applies).
func (c Config) Validate() error {
	if c.MaxConnections < 1 || c.MaxConnections > 65535 {
		return fmt.Errorf("server: max_connections must be in 1..65535, got %d", c.MaxConnections)
	}
	if c.ReadBufferSize < 1024 || c.ReadBufferSize > 1<<20 {
		return fmt.Errorf("server: read_buffer_size must be in 1KiB..1MiB, got %d", c.ReadBufferSize)
	}
	if c.MaxBodySize < 0 || c.MaxBodySize > 100<<20 {
		return fmt.Errorf("server: max_body_size must be <= 100MiB, got %d", c.MaxBodySize)
	}
	if c.LogLevel < 0 || c.LogLevel > 5 {
		return fmt.Errorf("server: log_level must be in 0..5, got %d", c.LogLevel)
	}
	return nil
}
