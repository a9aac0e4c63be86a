package main

import (
	"errors"
	"fmt"

	"github.com/osvaldoandrade/suiterun/internal/report"
	"github.com/osvaldoandrade/suiterun/internal/repository"

	"github.com/spf13/cobra"
)

func historyCmd(configPath, envFile *string, ui *ui) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *envFile)
			if err != nil {
				return err
			}
			rdb := newRedis(cfg)
			if rdb == nil {
				return errors.New("REDIS_ADDR is required for history")
			}
			defer rdb.Close()

			runs, err := repository.NewRunRepository(rdb, cfg.Redis.KeyPrefix, 0).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.dim("no runs recorded"))
				return nil
			}
			report.WriteHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
