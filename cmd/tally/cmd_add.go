package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <paths...>",
		Short: "Stage files for the next commit",
		Long:  `Copies the named files into the pending commit. Directories stage every file below them.`,
		Example: `  tally add notes.txt
  tally add src/`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			paths, err := s.Workspace.Resolve(a.base, args)
			if err != nil {
				return err
			}
			if err := s.Add(paths); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Staged %s\n", plural(len(paths), "file"))
			return nil
		}, true),
	}
}

func (a *app) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <paths...>",
		Short: "Stage the removal of tracked files",
		Long: `Stops tracking the named files from the next commit on. Working files are not deleted.
A directory names every tracked file below it.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tracked, err := s.Tracked()
			if err != nil {
				return err
			}
			paths, err := s.Workspace.ResolveTracked(a.base, args, tracked)
			if err != nil {
				return err
			}
			if err := s.Remove(paths); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unstaged %s\n", plural(len(paths), "file"))
			return nil
		}, true),
	}
}
