package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <message>",
		Short: "Record the staged changes as a new commit",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := s.Commit(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", color.YellowString(c.Name()), c.Message())
			fmt.Fprintf(cmd.OutOrStdout(), " %s changed\n", plural(len(c.Changed()), "path"))
			return nil
		}, true),
	}
}

func (a *app) newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <commit>",
		Short: "Drop every commit after the given one",
		Long: `Moves HEAD to the given commit and deletes every newer commit.
The working tree is left untouched.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.Reset(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range removed {
				fmt.Fprintf(out, "Dropped %s %s\n", color.RedString(c.Name()), c.Message())
			}
			fmt.Fprintf(out, "HEAD is now at %s\n", color.YellowString(args[0]))
			return nil
		}, true),
	}
}

func (a *app) newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log [commit]",
		Short: "Show history from HEAD back to, but excluding, commit",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			from := ""
			if len(args) == 1 {
				from = args[0]
			}
			log, err := s.Log(from)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range log {
				fmt.Fprintf(out, "%s %s\n", color.YellowString("commit"), color.YellowString(c.Name()))
				fmt.Fprintf(out, "\n    %s\n\n", c.Message())
			}
			return nil
		}, true),
	}
}

func (a *app) newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete commit folders no commit refers to",
		Long:  `Removes folders left behind by interrupted commits and resets.`,
		Args:  usageArgs(cobra.NoArgs),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.Cleanup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range removed {
				fmt.Fprintf(out, "Removed %s\n", name)
			}
			fmt.Fprintf(out, "Cleanup completed, %s removed\n", plural(len(removed), "folder"))
			return nil
		}, true),
	}
}
