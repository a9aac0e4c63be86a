package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/client"
	"github.com/osvaldoandrade/suiterun/internal/metrics"
	"github.com/osvaldoandrade/suiterun/internal/providers"
	"github.com/osvaldoandrade/suiterun/internal/report"
	"github.com/osvaldoandrade/suiterun/internal/repository"
	"github.com/osvaldoandrade/suiterun/internal/request"
	"github.com/osvaldoandrade/suiterun/internal/services"
	"github.com/osvaldoandrade/suiterun/internal/tracing"
	"github.com/osvaldoandrade/suiterun/pkg/app"
	"github.com/osvaldoandrade/suiterun/pkg/config"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/briandowns/spinner"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runFlags struct {
	projectID       string
	suiteID         string
	baseURL         string
	browser         string
	screenshot      bool
	variables       string
	retry           int
	maxAttempts     int
	waitPeriod      string
	hubURL          string
	startingURL     string
	outputDir       string
	pollConcurrency int
	junitFile       string
	metricsFile     string
	logLevel        string
	quiet           bool
}

// apply overlays every flag the user set explicitly on top of cfg.
func (f *runFlags) apply(changed func(string) bool, cfg *config.Config) error {
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("project-id", &cfg.ProjectID, f.projectID)
	set("suite-id", &cfg.SuiteID, f.suiteID)
	set("base-url", &cfg.BaseURL, f.baseURL)
	set("browser", &cfg.Browser, f.browser)
	set("variables", &cfg.Variables, f.variables)
	set("hub-url", &cfg.HubURL, f.hubURL)
	set("starting-url", &cfg.StartingURL, f.startingURL)
	set("output-dir", &cfg.OutputDir, f.outputDir)
	set("junit-file", &cfg.JUnitFile, f.junitFile)
	set("metrics-file", &cfg.MetricsFile, f.metricsFile)
	set("log-level", &cfg.LogLevel, f.logLevel)

	if changed("screenshot") {
		v := f.screenshot
		cfg.Screenshot = &v
	}
	if changed("retry") {
		cfg.Retry = f.retry
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = f.maxAttempts
	}
	if changed("poll-concurrency") && f.pollConcurrency > 0 {
		cfg.PollConcurrency = f.pollConcurrency
	}
	if changed("wait-period") {
		n, err := config.ParseSeconds(f.waitPeriod)
		if err != nil {
			return domain.NewConfigurationError("--wait-period: " + err.Error())
		}
		cfg.WaitPeriod = &n
	}
	return nil
}

func runCmd(configPath, envFile *string, ui *ui) *cobra.Command {
	f := &runFlags{quiet: getenvBool("SUITERUN_QUIET", false)}

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Submit the suite and wait for every execution",
		Example: "suiterun run --project-id p1 --suite-id s1 --max-attempts 10 --wait-period 60",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			env := runEnv{
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
				interactive: !f.quiet && isTerminal(int(os.Stdout.Fd())),
				quiet:       f.quiet,
			}

			cfg, err := loadConfig(*configPath, *envFile)
			if err == nil {
				err = f.apply(cmd.Flags().Changed, cfg)
			}
			if err != nil {
				fmt.Fprintf(env.stderr, "%s %s\n", ui.err("[ERROR]"), diagnostic(err))
				return exitError{code: domain.ExitRuntimeErr}
			}

			if code := executeRun(ctx, cfg, env, ui); code != domain.ExitSuccess {
				return exitError{code: code}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.projectID, "project-id", "", "Project id (env: PROJECT_ID)")
	fl.StringVar(&f.suiteID, "suite-id", "", "Suite id (env: SUITE_ID)")
	fl.StringVar(&f.baseURL, "base-url", "", "Remote API base URL (env: BASE_URL)")
	fl.StringVar(&f.browser, "browser", "", "Browser (env: BROWSER, default chrome)")
	fl.BoolVar(&f.screenshot, "screenshot", true, "Capture screenshots (env: SCREENSHOT)")
	fl.StringVar(&f.variables, "variables", "", "JSON object of suite variables (env: VARIABLES)")
	fl.IntVar(&f.retry, "retry", 0, "Retries the remote service applies to failed tests (env: RETRY)")
	fl.IntVar(&f.maxAttempts, "max-attempts", 0, "Polling rounds before giving up (env: MAX_ATTEMPTS, default 30)")
	fl.StringVar(&f.waitPeriod, "wait-period", "", "Seconds between rounds, or a duration like 90s (env: WAIT_PERIOD, default 120)")
	fl.StringVar(&f.hubURL, "hub-url", "", "Selenium hub URL (env: HUB_URL)")
	fl.StringVar(&f.startingURL, "starting-url", "", "Starting URL override (env: STARTING_URL)")
	fl.StringVar(&f.outputDir, "output-dir", "", "Directory for summary.txt and raw results (env: OUTPUT_DIR, default results)")
	fl.IntVar(&f.pollConcurrency, "poll-concurrency", 0, "Parallel status requests per round (env: POLL_CONCURRENCY, default 1)")
	fl.StringVar(&f.junitFile, "junit-file", "", "Write a JUnit XML report (env: JUNIT_FILE)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format (env: METRICS_FILE)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error (env: LOG_LEVEL)")
	fl.BoolVarP(&f.quiet, "quiet", "q", f.quiet, "No spinner, progress or table output")
	return cmd
}

type runEnv struct {
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	quiet       bool
	// sleep replaces the wait between rounds; nil waits for real.
	sleep func(ctx context.Context, d time.Duration) error
}

// executeRun performs one full run and returns the process exit code.
func executeRun(ctx context.Context, cfg *config.Config, env runEnv, ui *ui) int {
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat, env.stderr).With("service", "suiterun")
	slog.SetDefault(logger)

	fatal := func(err error) int {
		fmt.Fprintf(env.stderr, "%s %s\n", ui.err("[ERROR]"), diagnostic(err))
		return domain.ExitRuntimeErr
	}

	// A marker left by an earlier run must not survive a run that aborts.
	if err := clearMarker(cfg.OutputDir); err != nil {
		return fatal(err)
	}

	if err := cfg.Validate(); err != nil {
		return fatal(err)
	}
	if config.TokenExpired(cfg.APIToken, time.Now()) {
		exp, _ := config.TokenExpiry(cfg.APIToken)
		logger.Warn("API_TOKEN looks expired; the remote service may reject it", "expired_at", exp.UTC().Format(time.RFC3339))
	}

	screenshot := cfg.ScreenshotEnabled()
	req, err := request.Build(request.Params{
		ProjectID:   cfg.ProjectID,
		SuiteID:     cfg.SuiteID,
		Browser:     cfg.Browser,
		Screenshot:  &screenshot,
		Variables:   cfg.Variables,
		Retry:       cfg.Retry,
		HubURL:      request.Optional(cfg.HubURL),
		StartingURL: request.Optional(cfg.StartingURL),
	})
	if err != nil {
		return fatal(err)
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  "suiterun",
		OTLPEndpoint: cfg.Tracing.Endpoint,
		OTLPInsecure: cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(sctx)
		}()
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	rdb := newRedis(cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	store := buildStore(ctx, cfg, rdb, runID, logger)

	api := client.New(cfg.BaseURL, cfg.APIToken,
		client.WithTimeout(cfg.RequestTimeout()),
		client.WithLogger(logger),
		client.WithUserAgent("suiterun/"+version),
	)

	var (
		spin *spinner.Spinner
		bar  *progressbar.ProgressBar
	)
	hooks := services.RunHooks{
		OnSubmitStart: func() {
			if env.interactive {
				spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(env.stdout))
				spin.Suffix = " Submitting suite..."
				spin.Start()
			}
		},
		OnSubmitted: func(handles []domain.ExecutionHandle, err error) {
			if spin != nil {
				spin.Stop()
			}
			if err != nil || env.quiet {
				return
			}
			fmt.Fprintf(env.stdout, "%s Suite queued: %d execution(s) %s\n", ui.ok("[OK]"), len(handles), ui.dim("run "+runID))
			if env.interactive {
				bar = progressbar.NewOptions(len(handles),
					progressbar.OptionSetWriter(env.stdout),
					progressbar.OptionSetDescription("Waiting for executions"),
					progressbar.OptionSetWidth(18),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
		},
	}

	onRound := func(rr services.RoundReport) {
		switch {
		case bar != nil:
			bar.Describe(fmt.Sprintf("Round %d/%d", rr.Round, rr.MaxAttempts))
			_ = bar.Set(rr.Completed)
			if rr.Completed == rr.Total {
				_ = bar.Finish()
			}
		case !env.quiet:
			fmt.Fprintf(env.stdout, "%s round %d/%d: %d/%d executions completed\n",
				ui.info("[INFO]"), rr.Round, rr.MaxAttempts, rr.Completed, rr.Total)
		}
	}

	poller := services.NewPollerService(api, store, logger, services.PollerOptions{
		ProjectID:   cfg.ProjectID,
		WaitPeriod:  cfg.WaitPeriodDuration(),
		MaxAttempts: cfg.MaxAttempts,
		Concurrency: cfg.PollConcurrency,
		Sleep:       env.sleep,
		OnRound:     onRound,
	})
	aggregator := services.NewAggregatorService(store, logger)
	run := services.NewRunService(req, api, poller, aggregator, logger, time.Now, runID, hooks)

	rep, err := run.Run(ctx)
	defer writeMetrics(cfg.MetricsFile, logger)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return fatal(err)
	}

	if !env.quiet {
		report.WriteTable(env.stdout, rep, report.TableOptions{Colored: env.interactive})
	}
	finished := time.Now()
	if rdb != nil {
		runs := repository.NewRunRepository(rdb, cfg.Redis.KeyPrefix, redisTTL(cfg))
		if err := runs.SaveRun(ctx, domain.NewRunRecord(rep, finished)); err != nil {
			logger.Warn("run history not saved", "err", err)
		}
	}
	if cfg.JUnitFile != "" {
		if err := report.WriteJUnitFile(cfg.JUnitFile, rep, finished); err != nil {
			logger.Warn("junit report not written", "path", cfg.JUnitFile, "err", err)
		}
	}

	marker := filepath.Join(cfg.OutputDir, services.SummaryObjectPath)
	switch rep.Outcome {
	case domain.OutcomePassed:
		fmt.Fprintf(env.stdout, "%s %s %s\n", ui.ok("[OK]"), rep.Outcome, ui.dim(marker))
	case domain.OutcomeTimeout:
		fmt.Fprintf(env.stdout, "%s %s: %d execution(s) still pending after %d rounds %s\n",
			ui.warn("[WARN]"), rep.Outcome, len(rep.Result.Pending), rep.Result.Rounds, ui.dim(marker))
	default:
		fmt.Fprintf(env.stdout, "%s %s %s\n", ui.err("[ERROR]"), rep.Outcome, ui.dim(marker))
	}
	return rep.Outcome.ExitCode()
}

func clearMarker(outputDir string) error {
	err := os.Remove(filepath.Join(outputDir, services.SummaryObjectPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear previous marker: %w", err)
	}
	return nil
}

func newRedis(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return providers.NewRedisProvider(cfg.Redis.Addr, cfg.Redis.Password)
}

// redisTTL applies to mirrored result keys and to run history records.
func redisTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Redis.TTLSeconds) * time.Second
}

// buildStore returns the local output directory store, mirrored to Redis and S3 when
// configured. Mirror setup problems are logged and the mirror is skipped.
func buildStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, runID string, logger *slog.Logger) providers.Uploader {
	var mirrors []providers.Uploader
	if rdb != nil {
		mirrors = append(mirrors, providers.NewRedisUploader(rdb, cfg.Redis.KeyPrefix+":"+runID, redisTTL(cfg)))
	}
	if cfg.S3.Bucket != "" {
		s3c, err := providers.NewS3Client(ctx)
		if err != nil {
			logger.Warn("s3 mirror disabled", "bucket", cfg.S3.Bucket, "err", err)
		} else {
			mirrors = append(mirrors, providers.NewS3Uploader(s3c, cfg.S3.Bucket, path.Join(cfg.S3.Prefix, runID)))
		}
	}
	return providers.NewMirroredUploader(providers.NewLocalUploader(cfg.OutputDir), mirrors...)
}

func writeMetrics(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		logger.Warn("metrics textfile not written", "path", path, "err", err)
	}
}

// diagnostic renders err as "<stage>: <message> (execution <handle>)".
func diagnostic(err error) string {
	msg := err.Error()
	stage := domain.StageOf(err)
	if stage == "" || strings.HasPrefix(msg, string(stage)+":") {
		return msg
	}
	return string(stage) + ": " + msg
}
