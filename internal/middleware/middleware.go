package middleware

import (
	"context"
	"fmt"
	"time"

	"tally/internal/errors"
	"tally/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RunE is the signature of a cobra command body.
type RunE func(cmd *cobra.Command, args []string) error

type Middleware func(RunE) RunE

// Chain wraps h so the last middleware runs first.
func Chain(h RunE, middlewares ...Middleware) RunE {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// OperationID tags the command's context with a fresh id.
func OperationID(next RunE) RunE {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.ContextWithOperationID(commandContext(cmd), uuid.New().String())
		cmd.SetContext(ctx)
		return next(cmd, args)
	}
}

func Logger(logger *logging.Logger) Middleware {
	return func(next RunE) RunE {
		return func(cmd *cobra.Command, args []string) error {
			start := time.Now()

			err := next(cmd, args)

			fields := []zap.Field{
				zap.String("command", cmd.Name()),
				zap.Int("args", len(args)),
				zap.Duration("duration", time.Since(start)),
			}
			log := logger.WithOperationID(commandContext(cmd))
			if err != nil {
				fields = append(fields, zap.String("error_type", string(errors.TypeOf(err))), zap.Error(err))
				log.Warn("command failed", fields...)
				return err
			}
			log.Info("command completed", fields...)
			return nil
		}
	}
}

// Recover turns a panic into an internal error.
func Recover(logger *logging.Logger) Middleware {
	return func(next RunE) RunE {
		return func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithOperationID(commandContext(cmd)).Error("panic recovered",
						zap.String("command", cmd.Name()),
						zap.Any("error", r),
					)
					err = errors.Internal(fmt.Sprintf("panic in %s: %v", cmd.Name(), r), r)
				}
			}()
			return next(cmd, args)
		}
	}
}

// RequireRepository runs check before the command and stops on failure.
func RequireRepository(check func(cmd *cobra.Command) error) Middleware {
	return func(next RunE) RunE {
		return func(cmd *cobra.Command, args []string) error {
			if err := check(cmd); err != nil {
				return err
			}
			return next(cmd, args)
		}
	}
}
