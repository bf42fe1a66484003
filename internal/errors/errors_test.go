package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("staging: %w", UntrackedPath("a.txt"))

	assert.True(t, stderrors.Is(err, ErrUntrackedPath))
	assert.False(t, stderrors.Is(err, ErrDetachedHead))
	assert.Equal(t, ErrorTypeUntrackedPath, TypeOf(err))
	assert.Equal(t, "staging: file a.txt is not tracked", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	err := IO("copying a.txt", fs.ErrPermission)

	assert.True(t, stderrors.Is(err, fs.ErrPermission))
	assert.True(t, stderrors.Is(err, ErrIO))
	assert.Contains(t, err.Error(), "permission denied")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "domain", err: EmptyCommit(), want: CodeDomain},
		{name: "usage", err: Usage("bad args"), want: CodeUsage},
		{name: "corrupt", err: RepositoryCorrupt("no layout", nil), want: CodeIO},
		{name: "wrapped domain", err: fmt.Errorf("op: %w", UnknownCommit("x")), want: CodeDomain},
		{name: "untyped", err: stderrors.New("boom"), want: CodeIO},
		{name: "internal", err: Internal("panic", nil), want: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
