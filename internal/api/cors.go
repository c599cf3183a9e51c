package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin to use the methods the bridge API
// serves. EventSource clients authenticate with ?auth= since they cannot
// send headers.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

// headers returns a function that writes the precomputed CORS headers.
func (c CORSConfig) headers() func(set func(key, value string)) {
	origin := c.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	values := [][2]string{
		{"Access-Control-Allow-Origin", origin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(c.MaxAge)},
	}
	if origin != "*" {
		values = append(values, [2]string{"Vary", "Origin"})
	}
	return func(set func(key, value string)) {
		for _, kv := range values {
			set(kv[0], kv[1])
		}
	}
}

// NewCORSMiddleware creates CORS middleware with the given configuration
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	apply := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		apply(ctx.SetHeader)
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on the mux, since Huma
// middleware never sees OPTIONS for paths without an OPTIONS operation.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	apply := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		apply(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
