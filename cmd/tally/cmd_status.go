package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"tally/internal/errors"
	"tally/internal/session"
	"tally/internal/watch"
	"tally/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *app) newStatusCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show staged changes and untracked files",
		Long: `Shows staged changes and untracked files. With --watch, status is printed
again whenever the working tree changes. The repository stays usable by other
commands between refreshes.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			opts := a.sessionOptions(cmd)
			if !follow {
				return session.View(a.cfg, func(s *session.Session) error {
					return printStatus(out, s)
				}, opts...)
			}

			logger := a.logger.WithOperationID(cmd.Context())
			ws, err := workspace.NewLocalWorkspace(a.cfg, logger)
			if err != nil {
				return errors.Internal("creating workspace", err.Error())
			}
			if err := ws.Check(); err != nil {
				return err
			}
			w, err := watch.New(a.cfg.Root, ws.ShouldIgnore, logger)
			if err != nil {
				return errors.IO("watching working tree", err)
			}
			defer w.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return w.Run(ctx, func() error {
				return session.View(a.cfg, func(s *session.Session) error {
					fmt.Fprintln(out, color.New(color.Faint).Sprint("--- status ---"))
					return printStatus(out, s)
				}, opts...)
			})
		}, true),
	}
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "re-run status whenever the working tree changes")
	return cmd
}

func printStatus(out io.Writer, s *session.Session) error {
	st, err := s.Status()
	if err != nil {
		return err
	}

	if st.Head == "" {
		fmt.Fprintln(out, "No commits yet")
	} else {
		fmt.Fprintf(out, "On commit %s\n", color.YellowString(st.Head))
	}

	if len(st.Added)+len(st.Removed)+len(st.Untracked) == 0 {
		fmt.Fprintln(out, "Nothing to commit, working tree clean")
		return nil
	}

	if len(st.Added)+len(st.Removed) > 0 {
		fmt.Fprintln(out, "\nChanges to be committed:")
		fmt.Fprintln(out, "  (use \"tally rm <file>...\" to unstage)")
		printList(out, color.GreenString("added:  "), st.Added)
		printList(out, color.RedString("removed:"), st.Removed)
	}

	if len(st.Untracked) > 0 {
		fmt.Fprintln(out, "\nUntracked files:")
		fmt.Fprintln(out, "  (use \"tally add <file>...\" to include in the next commit)")
		printList(out, color.YellowString("?"), st.Untracked)
	}
	fmt.Fprintln(out)
	return nil
}
