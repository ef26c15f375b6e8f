package main

import (
	"fmt"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/spf13/cobra"
)

var recordKinds = map[string]domain.Kind{
	"phones": domain.KindPhone,
	"emails": domain.KindEmail,
}

func newRecordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "records <phones|emails>",
		Short:     "List saved phone numbers or email addresses",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"phones", "emails"},
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := repo.Close(); closeErr != nil {
					a.logger.Warn("Failed to close repository", "error", closeErr)
				}
			}()

			recs, err := repo.SelectAll(cmd.Context(), recordKinds[args[0]])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range recs {
				if _, err := fmt.Fprintf(out, "%d. %s\n", r.ID, r.Value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
