package http

import (
	"net/http"

	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/metrics"
)

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Lookup http.Handler
	Stats  http.Handler

	// Metrics is exposed at MetricsPath when both are set.
	Metrics     *metrics.Metrics
	MetricsPath string

	// Wrap runs outside the default chain, e.g. shutdown gating.
	Wrap   Middleware
	Logger *logger.Logger
}

// NewRouter mounts the API. Every path not claimed by stats or metrics is a
// lookup.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	chain := DefaultMiddleware(log.Component("http"), cfg.Metrics)

	mux := http.NewServeMux()
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}
	if cfg.Stats != nil {
		mux.Handle("/stats", RequestIDMiddleware(cfg.Stats))
	}
	mux.Handle("/", chain(cfg.Lookup))

	if cfg.Wrap != nil {
		return cfg.Wrap(mux)
	}
	return mux
}
