package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-catalog/pkg/simplecatalog"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/api"
	"github.com/tendant/simple-catalog/pkg/simplecatalog/config"
)

const itemsPrefix = "/api/items"

// NewRouter mounts the item API under /api/items. The API key check is
// enabled when API_KEY_SHA256 is set; health checks stay public.
func NewRouter(svc simplecatalog.Service, cfg *config.ServerConfig, log *slog.Logger) (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(api.LoggingMiddleware(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	imageBaseURL := cfg.ImageBaseURL
	if imageBaseURL == "" {
		imageBaseURL = itemsPrefix + "/images"
	}

	items := api.NewItemHandler(svc,
		api.WithMaxImageBytes(cfg.MaxImageBytes),
		api.WithCreateRateLimit(cfg.CreateRatePerMinute),
		api.WithImageBaseURL(imageBaseURL),
		api.WithHandlerLogger(log),
	)

	var apiKeyMiddleware func(next http.Handler) http.Handler
	if cfg.APIKeySHA256 != "" {
		mw, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": cfg.APIKeySHA256,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		apiKeyMiddleware = mw
	}

	r.Route(itemsPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if apiKeyMiddleware != nil {
				r.Use(apiKeyMiddleware)
			}
			r.Mount("/", items.Routes())
		})
	})

	return r, nil
}
