// cmd/tally/main.go
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"tally/internal/config"
	"tally/internal/errors"
	"tally/internal/logging"
	"tally/internal/middleware"
	"tally/internal/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

// app holds what every command needs once the root command has resolved
// where it runs.
type app struct {
	dir    string // --dir flag
	base   string // directory arguments are relative to
	found  bool   // whether base is inside a repository
	cfg    *config.Config
	logger *logging.Logger
	now    func() time.Time
}

func newApp() *app {
	return &app{
		logger: logging.Nop(),
		now:    time.Now,
	}
}

func main() {
	a := newApp()
	root := a.newRootCmd()

	if err := root.Execute(); err != nil {
		var typed *errors.Error
		if !stderrors.As(err, &typed) {
			// Anything untyped comes from cobra's own argument parsing.
			err = errors.Usage(err.Error())
		}
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		a.logger.Sync()
		os.Exit(errors.ExitCode(err))
	}
	a.logger.Sync()
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tally",
		Short: "Tally is a minimal local version control system",
		Long: `Tally tracks a working directory, stages additions and removals,
seals them into named commits and restores any committed file or revision.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", "", "run as if started in this directory")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Usage(err.Error())
	})

	root.AddCommand(a.newVersionCmd())
	root.AddCommand(a.newInitCmd())
	root.AddCommand(a.newAddCmd())
	root.AddCommand(a.newRmCmd())
	root.AddCommand(a.newStatusCmd())
	root.AddCommand(a.newCommitCmd())
	root.AddCommand(a.newResetCmd())
	root.AddCommand(a.newLogCmd())
	root.AddCommand(a.newCheckoutCmd())
	root.AddCommand(a.newCleanupCmd())
	return root
}

// setup finds the repository, loads its configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	base := a.dir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.IO("getting current directory", err)
		}
		base = wd
	}
	a.base = base

	root, err := config.FindRoot(base)
	switch {
	case err == nil:
		a.found = true
	case stderrors.Is(err, config.ErrNoRepository):
		root = base
	default:
		return errors.IO("looking for repository", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return errors.IO("loading configuration", err)
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return errors.Usage(fmt.Sprintf("invalid log level %q", cfg.LogLevel))
	}
	a.logger = logger
	return nil
}

// run wraps a command body with the middleware stack. Commands that need a
// repository get the layout check.
func (a *app) run(h middleware.RunE, needsRepo bool) middleware.RunE {
	return func(cmd *cobra.Command, args []string) error {
		mws := []middleware.Middleware{}
		if needsRepo {
			mws = append(mws, middleware.RequireRepository(a.requireRepository))
		}
		mws = append(mws,
			middleware.Recover(a.logger),
			middleware.Logger(a.logger),
			middleware.OperationID,
		)
		return middleware.Chain(h, mws...)(cmd, args)
	}
}

func (a *app) requireRepository(cmd *cobra.Command) error {
	if !a.found {
		return errors.Usage("not a tally repository (or any parent): " + a.base)
	}
	return nil
}

func (a *app) sessionOptions(cmd *cobra.Command) []session.Option {
	return []session.Option{
		session.WithClock(a.now),
		session.WithLogger(a.logger.WithOperationID(cmd.Context())),
	}
}

// open starts a session on the repository. Callers close it.
func (a *app) open(cmd *cobra.Command) (*session.Session, error) {
	return session.Open(a.cfg, a.sessionOptions(cmd)...)
}

// usageArgs makes argument validation failures usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return errors.Usage(err.Error())
		}
		return nil
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func printList(out io.Writer, marker string, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(out, "\t%s %s\n", marker, p)
	}
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tally", version)
		},
	}
}
