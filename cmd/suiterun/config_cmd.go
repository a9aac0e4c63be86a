package main

import (
	"errors"
	"fmt"

	"github.com/osvaldoandrade/suiterun/pkg/config"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadConfig resolves configuration in order: dotenv file, yaml file, environment.
func loadConfig(configPath, envFile string) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return config.LoadConfigOptional(configPath)
}

func configCmd(configPath, envFile *string, ui *ui) *cobra.Command {
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (token masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *envFile)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the resolved configuration without calling the remote service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *envFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				var cfgErr *domain.ConfigurationError
				if errors.As(err, &cfgErr) {
					for _, p := range cfgErr.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", ui.err("[ERROR]"), p)
					}
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), ui.err("[ERROR]"), err)
				}
				return exitError{code: domain.ExitRuntimeErr}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s configuration is valid\n", ui.ok("[OK]"))
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(show, validate)
	return cmd
}
