package main

import (
	"fmt"

	"tally/internal/errors"
	"tally/internal/repository"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout (<commit> | -- <paths...>)",
		Short: "Restore files or switch the working tree to a commit",
		Long: `With a commit name, makes the working tree match that commit. Unless the
commit is the latest one, HEAD becomes detached and staging is disabled until
you reset or check out the latest commit again.

With -- and paths, restores those files to their last committed content. A
directory restores every tracked file below it.`,
		Example: `  tally checkout 2024.03.01_12.00.00.000
  tally checkout -- notes.txt`,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			out := cmd.OutOrStdout()

			switch dash := cmd.ArgsLenAtDash(); {
			case dash == 0:
				if len(args) == 0 {
					return errors.Usage("checkout -- needs at least one path")
				}
				tracked, err := s.Tracked()
				if err != nil {
					return err
				}
				paths, err := s.Workspace.ResolveTracked(a.base, args, tracked)
				if err != nil {
					return err
				}
				if err := s.CheckoutFiles(paths); err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored %s\n", plural(len(paths), "file"))
				return nil

			case dash > 0 || len(args) != 1:
				return errors.Usage("usage: tally checkout <commit> | tally checkout -- <paths...>")
			}

			if err := s.CheckoutRevision(args[0]); err != nil {
				return err
			}
			_, mode, err := s.Head()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "HEAD is now at %s", color.YellowString(args[0]))
			if mode == repository.Detached {
				fmt.Fprint(out, color.RedString(" (detached)"))
			}
			fmt.Fprintln(out)
			return nil
		}, true),
	}
}
