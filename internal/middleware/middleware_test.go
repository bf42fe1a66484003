package middleware

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tally/internal/errors"
	"tally/internal/logging"
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "probe"}
	cmd.SetContext(context.Background())
	return cmd
}

func observed() (*logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logging.Logger{Logger: zap.New(core)}, logs
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next RunE) RunE {
			return func(cmd *cobra.Command, args []string) error {
				order = append(order, name)
				return next(cmd, args)
			}
		}
	}

	h := Chain(func(*cobra.Command, []string) error {
		order = append(order, "handler")
		return nil
	}, mark("inner"), mark("outer"))

	require.NoError(t, h(newCmd(), nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestOperationID(t *testing.T) {
	var seen string
	h := OperationID(func(cmd *cobra.Command, args []string) error {
		id, ok := logging.OperationID(cmd.Context())
		require.True(t, ok)
		seen = id
		return nil
	})

	require.NoError(t, h(newCmd(), nil))
	assert.Len(t, seen, 36)
}

func TestLogger(t *testing.T) {
	logger, logs := observed()

	ok := Chain(func(*cobra.Command, []string) error { return nil }, Logger(logger), OperationID)
	require.NoError(t, ok(newCmd(), []string{"a"}))

	failing := Chain(func(*cobra.Command, []string) error { return errors.EmptyCommit() }, Logger(logger))
	err := failing(newCmd(), nil)
	assert.True(t, stderrors.Is(err, errors.ErrEmptyCommit))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "command completed", entries[0].Message)
	assert.Contains(t, entries[0].ContextMap(), "operation_id")
	assert.Equal(t, "command failed", entries[1].Message)
	assert.Equal(t, string(errors.ErrorTypeEmptyCommit), entries[1].ContextMap()["error_type"])
}

func TestRecover(t *testing.T) {
	logger, logs := observed()

	h := Recover(logger)(func(*cobra.Command, []string) error {
		panic("boom")
	})

	err := h(newCmd(), nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
	assert.Equal(t, errors.CodeInternal, errors.ExitCode(err))
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRequireRepository(t *testing.T) {
	called := false
	next := func(*cobra.Command, []string) error {
		called = true
		return nil
	}

	h := RequireRepository(func(*cobra.Command) error {
		return errors.RepositoryCorrupt("missing", nil)
	})(next)
	err := h(newCmd(), nil)
	assert.True(t, stderrors.Is(err, errors.ErrRepositoryCorrupt))
	assert.False(t, called)

	h = RequireRepository(func(*cobra.Command) error { return nil })(next)
	require.NoError(t, h(newCmd(), nil))
	assert.True(t, called)
}
