package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// exitError carries a process exit code out of a cobra command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	root := newRootCmd(newUI())
	if err := root.Execute(); err != nil {
		if ee, ok := err.(exitError); ok {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(domain.ExitRuntimeErr)
	}
}

func newRootCmd(ui *ui) *cobra.Command {
	configPath := getenv("SUITERUN_CONFIG_PATH", "")
	envFile := getenv("SUITERUN_ENV_FILE", ".env")

	root := &cobra.Command{
		Use:   "suiterun",
		Short: "suiterun CLI",
		Long:  "suiterun submits a test suite to the remote testing service, waits for every execution and reports one result.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&configPath, "config", configPath, "YAML config file (env: SUITERUN_CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "dotenv file loaded before reading the environment")

	root.AddCommand(
		runCmd(&configPath, &envFile, ui),
		configCmd(&configPath, &envFile, ui),
		historyCmd(&configPath, &envFile, ui),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "suiterun", version)
		},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func isTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

func helpTemplate(ui *ui) string {
	title := ui.title("suiterun")
	return fmt.Sprintf(`%s: run a remote test suite and wait for the verdict

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Environment:
  API_TOKEN, PROJECT_ID and SUITE_ID are required. Flags override the environment,
  which overrides the config file.

Exit codes:
  0 PASSED, 1 FAILED, 2 TIMEOUT or runtime error

Examples:
  suiterun run --project-id p1 --suite-id s1
  suiterun run --variables '{"env":"staging"}' --wait-period 30 --junit-file junit.xml
  suiterun config show

`, title)
}
