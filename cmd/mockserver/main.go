package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/mockserver"
	"github.com/osvaldoandrade/suiterun/internal/tracing"
	"github.com/osvaldoandrade/suiterun/pkg/app"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	var (
		port      int
		token     string
		rounds    int
		perSubmit int
		failIDs   string
		never     bool
	)

	cmd := &cobra.Command{
		Use:           "mockserver",
		Short:         "Scripted stand-in for the remote testing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(app.Config{
				Port:      port,
				APIToken:  token,
				LogLevel:  getenv("LOG_LEVEL", "info"),
				LogFormat: getenv("LOG_FORMAT", "json"),
				Script: mockserver.Options{
					RoundsUntilComplete: rounds,
					ExecutionsPerSubmit: perSubmit,
					FailIDs:             strings.Split(failIDs, ","),
					NeverComplete:       never,
				},
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", getenvInt("PORT", 8080), "listen port")
	cmd.Flags().StringVar(&token, "token", getenv("API_TOKEN", ""), "required x-api-token value (empty accepts any)")
	cmd.Flags().IntVar(&rounds, "rounds-until-complete", 2, "status requests before an execution completes")
	cmd.Flags().IntVar(&perSubmit, "executions", 2, "executions queued per submission")
	cmd.Flags().StringVar(&failIDs, "fail-ids", "", "comma-separated execution ids that finish with status error")
	cmd.Flags().BoolVar(&never, "never-complete", false, "keep every execution running")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
}

func serve(cfg app.Config) error {
	gin.SetMode(gin.ReleaseMode)
	application, err := app.NewApplication(cfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	app.SetupMappings(application)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      tracing.ParseBool(os.Getenv("OTEL_ENABLED")),
		ServiceName:  "suiterun-mockserver",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure: tracing.ParseBool(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")),
		SampleRatio:  tracing.ParseSampleRatio(os.Getenv("OTEL_SAMPLE_RATIO")),
	}, application.Logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	application.TracingShutdown = shutdown

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           application.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		application.Logger.Info("mock server listening", "addr", srv.Addr,
			"rounds_until_complete", cfg.Script.RoundsUntilComplete,
			"executions_per_submit", cfg.Script.ExecutionsPerSubmit)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	if application.TracingShutdown != nil {
		_ = application.TracingShutdown(ctx)
	}
	return nil
}
