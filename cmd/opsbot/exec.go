package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [arg]",
		Short: "Run one catalog command on the monitored host and print its output",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateRemote(); err != nil {
				return err
			}
			executor, err := a.openExecutor(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := executor.Close(); closeErr != nil {
					a.logger.Warn("Failed to close remote session", "error", closeErr)
				}
			}()

			if _, ok := executor.Catalog()[args[0]]; !ok {
				return fmt.Errorf("unknown command %q, available: %s",
					args[0], strings.Join(executor.Catalog().Names(), ", "))
			}
			res := executor.Execute(cmd.Context(), args[0], args[1:]...)
			if !res.OK() {
				return res.Fault
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), res.Text)
			return err
		},
	}
}
