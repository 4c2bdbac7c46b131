package runtime

import (
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/loader"
	"github.com/wippyai/dynbind/proxy"
	"github.com/wippyai/dynbind/refcount"
)

const (
	EnvPath  = "DYNBIND_PATH"
	EnvDebug = "DYNBIND_DEBUG"
)

// Config holds runtime configuration.
type Config struct {
	// SearchPaths lists directories searched for .wasm modules.
	// Empty means only in-process modules are available.
	SearchPaths []string

	// Logger receives logs from every bridge package. nil keeps the
	// current package loggers.
	Logger *zap.Logger

	// Reflector overrides the reflection service. By default interfaces
	// are described from the signatures published by loaded modules.
	Reflector catalog.Reflector

	// Diagnostics receives host exceptions swallowed by callbacks.
	Diagnostics callback.Diagnostics
}

// ConfigFromEnv builds a configuration from DYNBIND_PATH and DYNBIND_DEBUG.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if p := os.Getenv(EnvPath); p != "" {
		for _, dir := range filepath.SplitList(p) {
			if dir != "" {
				cfg.SearchPaths = append(cfg.SearchPaths, dir)
			}
		}
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		if debug {
			l, err := zap.NewDevelopment()
			if err != nil {
				return nil, err
			}
			cfg.Logger = l
		}
	}
	return cfg, nil
}

// SetLogger configures the logger of every bridge package.
func SetLogger(l *zap.Logger) {
	catalog.SetLogger(l.Named("catalog"))
	loader.SetLogger(l.Named("loader"))
	refcount.SetLogger(l.Named("refcount"))
	proxy.SetLogger(l.Named("proxy"))
	callback.SetLogger(l.Named("callback"))
}
