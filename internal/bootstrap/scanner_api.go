package bootstrap

import (
	"context"

	"scanner_server/adapter/in/http"
	"scanner_server/adapter/out/provider"
	"scanner_server/config"
	"scanner_server/infra/middleware"
	"scanner_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// NewAPI builds the fiber app: health, OAuth redirect and callback, scan
// trigger and metrics.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	return newAPIFromDeps(deps), cleanup, nil
}

func newAPIFromDeps(deps *Dependencies) *fiber.App {
	log := logger.Component("api")

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(log),
		DisableStartupMessage: deps.Config.IsProduction(),

		// go-json for faster encoding of scan results
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover(log))
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(log, deps.Metrics))

	http.NewHealthHandler(readinessChecks(deps)...).Register(app)
	http.RegisterMetrics(app, deps.Metrics)
	http.NewScanHandler(deps.ScanService).Register(app)

	if oauth, err := deps.RequireOAuth(); err == nil {
		http.NewOAuthHandler(oauth, deps.ScanService, log).Register(app)
	} else {
		log.Warn().Err(err).Msg("/auth and /oauth2callback disabled")
	}

	return app
}

func readinessChecks(deps *Dependencies) []http.ReadinessCheck {
	if provider.NormalizeSource(deps.Config.ScanSource) == provider.SourceMbox {
		return nil
	}
	return []http.ReadinessCheck{
		{
			Name: "oauth",
			Check: func(context.Context) error {
				_, err := deps.RequireOAuth()
				return err
			},
		},
		{
			Name: "token",
			Check: func(context.Context) error {
				_, err := deps.TokenStore.Load()
				return err
			},
		},
	}
}
