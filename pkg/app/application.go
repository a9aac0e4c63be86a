package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/middleware"
	"github.com/osvaldoandrade/suiterun/internal/mockserver"

	"github.com/gin-gonic/gin"
)

// Config configures the mock remote API application.
type Config struct {
	Port      int
	APIToken  string
	LogLevel  string
	LogFormat string
	Script    mockserver.Options
}

type Application struct {
	Config          Config
	Engine          *gin.Engine
	Script          *mockserver.Script
	Logger          *slog.Logger
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithLogger replaces the logger built from Config.
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

// WithClock sets the clock used for execution timestamps.
func WithClock(now func() time.Time) ApplicationOption {
	return func(app *Application) error {
		app.Script = mockserver.NewScript(app.Config.Script, now)
		return nil
	}
}

func NewApplication(cfg Config, w io.Writer, opts ...ApplicationOption) (*Application, error) {
	app := &Application{
		Config: cfg,
		Script: mockserver.NewScript(cfg.Script, time.Now),
		Logger: NewLogger(cfg.LogLevel, cfg.LogFormat, w).With("service", "suiterun-mockserver"),
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware("suiterun-mockserver"),
		middleware.LoggerMiddleware(app.Logger),
	)
	app.Engine = engine
	return app, nil
}

// NewLogger builds the slog logger shared by both binaries. format is "json" or
// "text"; unknown levels fall back to info.
func NewLogger(levelName, format string, w io.Writer) *slog.Logger {
	level := new(slog.LevelVar)
	switch levelName {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
