package main

import (
	"fmt"

	"tally/internal/errors"
	"tally/internal/session"

	"github.com/spf13/cobra"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty repository in the current directory",
		Args:  usageArgs(cobra.NoArgs),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if a.found && a.cfg.Root != a.base {
				return errors.Usage("already inside the repository at " + a.cfg.Root)
			}
			if err := session.Init(a.cfg, session.WithLogger(a.logger.WithOperationID(cmd.Context()))); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Initialized empty tally repository in", a.cfg.Root)
			return nil
		}, false),
	}
}
