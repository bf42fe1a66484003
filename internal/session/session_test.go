package session

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/commit"
	"tally/internal/config"
	"tally/internal/errors"
	"tally/internal/repository"
	"tally/internal/workspace"
)

func stepClock() func() time.Time {
	next := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		next = next.Add(time.Second)
		return next
	}
}

type fixture struct {
	cfg   *config.Config
	clock func() time.Time
	s     *Session
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg:   config.Default(t.TempDir()),
		clock: stepClock(),
	}
	require.NoError(t, Init(f.cfg))
	f.reopen(t)
	return f
}

// reopen closes the session and opens a new one, so every assertion after it
// reads persisted state.
func (f *fixture) reopen(t *testing.T) {
	t.Helper()
	if f.s != nil {
		require.NoError(t, f.s.Close())
	}
	s, err := Open(f.cfg, WithClock(f.clock))
	require.NoError(t, err)
	f.s = s
	t.Cleanup(func() { s.Close() })
}

func (f *fixture) write(t *testing.T, rel, body string) {
	t.Helper()
	p := filepath.Join(f.cfg.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.cfg.Root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.cfg.Root, filepath.FromSlash(rel)))
	return err == nil
}

func (f *fixture) commit(t *testing.T, msg string, files map[string]string) *commit.Commit {
	t.Helper()
	var paths []string
	for p, body := range files {
		f.write(t, p, body)
		paths = append(paths, p)
	}
	require.NoError(t, f.s.Add(paths))
	c, err := f.s.Commit(msg)
	require.NoError(t, err)
	f.reopen(t)
	return c
}

func names(commits []*commit.Commit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.Name()
	}
	return out
}

func TestInit(t *testing.T) {
	cfg := config.Default(t.TempDir())
	require.NoError(t, Init(cfg))

	for _, dir := range []string{cfg.RepoDir(), cfg.CommitsDir(), cfg.PendingDir(), cfg.DBPath()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	_, err := os.Stat(cfg.ConfigPath())
	assert.NoError(t, err)

	err = Init(cfg)
	assert.True(t, stderrors.Is(err, errors.ErrUsage))

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	log, err := s.Log("")
	require.NoError(t, err)
	assert.Empty(t, log)
	head, mode, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, "", head)
	assert.Equal(t, repository.Attached, mode)
}

func TestOpen_WithoutRepository(t *testing.T) {
	_, err := Open(config.Default(t.TempDir()))
	assert.True(t, stderrors.Is(err, errors.ErrRepositoryCorrupt))
}

func TestAdd(t *testing.T) {
	f := setup(t)
	f.write(t, "toAdd1.txt", "1")
	f.write(t, "dir/toAdd2.txt", "2")

	require.NoError(t, f.s.Add([]string{"toAdd1.txt"}))
	require.NoError(t, f.s.Add([]string{"dir/toAdd2.txt"}))
	f.reopen(t)

	_, err := os.Stat(filepath.Join(f.cfg.PendingDir(), "dir", "toAdd2.txt"))
	assert.NoError(t, err)

	status, err := f.s.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/toAdd2.txt", "toAdd1.txt"}, status.Added)
	assert.Empty(t, status.Untracked)

	t.Run("missing file", func(t *testing.T) {
		err := f.s.Add([]string{"nope.txt"})
		assert.True(t, stderrors.Is(err, errors.ErrUsage))
	})

	t.Run("directory", func(t *testing.T) {
		err := f.s.Add([]string{"dir"})
		assert.True(t, stderrors.Is(err, errors.ErrUsage))
	})
}

func TestCommits(t *testing.T) {
	f := setup(t)
	c1 := f.commit(t, "1", map[string]string{"toAdd1": ""})
	c2 := f.commit(t, "2", map[string]string{"toAdd2": ""})
	c3 := f.commit(t, "3", map[string]string{"toAdd3": ""})

	log, err := f.s.Log("")
	require.NoError(t, err)
	assert.Equal(t, []string{c3.Name(), c2.Name(), c1.Name()}, names(log))

	for _, c := range log {
		folder := filepath.Join(f.cfg.CommitsDir(), c.Name())
		_, err := os.Stat(filepath.Join(folder, "toAdd"+c.Message()))
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(f.cfg.PendingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.s.Commit("nothing")
	assert.True(t, stderrors.Is(err, errors.ErrEmptyCommit))
}

func TestLogAndReset(t *testing.T) {
	f := setup(t)

	t1 := f.commit(t, "first", map[string]string{"a.txt": "v1"})
	log, err := f.s.Log("")
	require.NoError(t, err)
	assert.Equal(t, []string{t1.Name()}, names(log))
	assert.Equal(t, "first", log[0].Message())

	t2 := f.commit(t, "second", map[string]string{"a.txt": "v2"})
	log, err = f.s.Log(t1.Name())
	require.NoError(t, err)
	assert.Equal(t, []string{t2.Name()}, names(log))

	removed, err := f.s.Reset(t1.Name())
	require.NoError(t, err)
	assert.Equal(t, []string{t2.Name()}, names(removed))
	f.reopen(t)

	log, err = f.s.Log("")
	require.NoError(t, err)
	assert.Equal(t, []string{t1.Name()}, names(log))

	_, err = os.Stat(filepath.Join(f.cfg.CommitsDir(), t2.Name()))
	assert.True(t, os.IsNotExist(err))
	// The working tree is left as it was.
	assert.Equal(t, "v2", f.read(t, "a.txt"))

	_, err = f.s.Log(t2.Name())
	assert.True(t, stderrors.Is(err, errors.ErrUnknownCommit))
	_, err = f.s.Reset("2000.01.01_00.00.00.000")
	assert.True(t, stderrors.Is(err, errors.ErrUnknownCommit))
}

func TestReset_WithUncommittedChanges(t *testing.T) {
	f := setup(t)
	t1 := f.commit(t, "first", map[string]string{"a.txt": "v1"})
	f.write(t, "b.txt", "b")
	require.NoError(t, f.s.Add([]string{"b.txt"}))

	_, err := f.s.Reset(t1.Name())
	assert.True(t, stderrors.Is(err, errors.ErrUncommittedChanges))
}

func TestRemove(t *testing.T) {
	f := setup(t)
	f.commit(t, "first", map[string]string{"a.txt": "a"})

	f.write(t, "b.txt", "b")
	require.NoError(t, f.s.Add([]string{"b.txt"}))
	require.NoError(t, f.s.Remove([]string{"b.txt", "a.txt"}))
	f.reopen(t)

	_, err := os.Stat(filepath.Join(f.cfg.PendingDir(), "b.txt"))
	assert.True(t, os.IsNotExist(err))
	assert.True(t, f.exists("a.txt"))

	status, err := f.s.Status()
	require.NoError(t, err)
	assert.Empty(t, status.Added)
	assert.Equal(t, []string{"a.txt"}, status.Removed)
	assert.Equal(t, []string{"b.txt"}, status.Untracked)

	c, err := f.s.Commit("drop a")
	require.NoError(t, err)
	assert.False(t, c.Tracks("a.txt"))

	err = f.s.Remove([]string{"a.txt"})
	assert.True(t, stderrors.Is(err, errors.ErrUntrackedPath))
}

func TestCheckoutFiles(t *testing.T) {
	f := setup(t)
	c1 := f.commit(t, "first", map[string]string{"a.txt": "a1"})
	f.commit(t, "second", map[string]string{"b.txt": "b2"})
	f.commit(t, "third", map[string]string{"b.txt": "b3"})

	f.write(t, "a.txt", "scratch")
	require.NoError(t, os.Remove(filepath.Join(f.cfg.Root, "b.txt")))
	require.NoError(t, f.s.CheckoutFiles([]string{"a.txt", "b.txt"}))

	assert.Equal(t, "a1", f.read(t, "a.txt"))
	assert.Equal(t, "b3", f.read(t, "b.txt"))

	st, err := f.s.Store.Load()
	require.NoError(t, err)
	owner, ok := st.Pending().OwnerOf("a.txt")
	require.True(t, ok)
	assert.Equal(t, c1.Name(), owner.Name())

	t.Run("staged path", func(t *testing.T) {
		require.NoError(t, f.s.Add([]string{"a.txt"}))
		err := f.s.CheckoutFiles([]string{"a.txt"})
		assert.True(t, stderrors.Is(err, errors.ErrUncommittedLocalChange))
	})

	t.Run("untracked path", func(t *testing.T) {
		err := f.s.CheckoutFiles([]string{"c.txt"})
		assert.True(t, stderrors.Is(err, errors.ErrUntrackedPath))
	})
}

func TestCheckoutRevision(t *testing.T) {
	f := setup(t)
	c1 := f.commit(t, "first", map[string]string{"a.txt": "a1"})
	c2 := f.commit(t, "second", map[string]string{"a.txt": "a2", "dir/b.txt": "b2"})

	require.NoError(t, f.s.CheckoutRevision(c1.Name()))
	f.reopen(t)

	assert.Equal(t, "a1", f.read(t, "a.txt"))
	assert.False(t, f.exists("dir/b.txt"))

	head, mode, err := f.s.Head()
	require.NoError(t, err)
	assert.Equal(t, c1.Name(), head)
	assert.Equal(t, repository.Detached, mode)

	_, err = f.s.Status()
	assert.True(t, stderrors.Is(err, errors.ErrDetachedHead))
	err = f.s.Add([]string{"a.txt"})
	assert.True(t, stderrors.Is(err, errors.ErrDetachedHead))
	_, err = f.s.Commit("nope")
	assert.True(t, stderrors.Is(err, errors.ErrDetachedHead))

	log, err := f.s.Log("")
	require.NoError(t, err)
	assert.Equal(t, []string{c1.Name()}, names(log))

	require.NoError(t, f.s.CheckoutRevision(c2.Name()))
	f.reopen(t)

	assert.Equal(t, "a2", f.read(t, "a.txt"))
	assert.Equal(t, "b2", f.read(t, "dir/b.txt"))
	_, mode, err = f.s.Head()
	require.NoError(t, err)
	assert.Equal(t, repository.Attached, mode)

	_, err = f.s.Status()
	assert.NoError(t, err)
}

func TestCheckoutRevision_ThenReset(t *testing.T) {
	f := setup(t)
	c1 := f.commit(t, "first", map[string]string{"a.txt": "a1"})
	f.commit(t, "second", map[string]string{"a.txt": "a2"})

	require.NoError(t, f.s.CheckoutRevision(c1.Name()))
	removed, err := f.s.Reset(c1.Name())
	require.NoError(t, err)
	require.Len(t, removed, 1)
	f.reopen(t)

	_, mode, err := f.s.Head()
	require.NoError(t, err)
	assert.Equal(t, repository.Attached, mode)

	f.write(t, "a.txt", "a3")
	require.NoError(t, f.s.Add([]string{"a.txt"}))
	c3, err := f.s.Commit("third")
	require.NoError(t, err)
	assert.Equal(t, c1.Name(), c3.ParentName())
}

func TestStatus_Untracked(t *testing.T) {
	f := setup(t)
	f.commit(t, "first", map[string]string{"a.txt": "a"})
	f.write(t, "new.txt", "n")
	f.write(t, "sub/other.txt", "o")

	status, err := f.s.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"new.txt", "sub/other.txt"}, status.Untracked)
	assert.Empty(t, status.Added)
	assert.Empty(t, status.Removed)
}

func TestCommit_FailedSealKeepsStagedState(t *testing.T) {
	f := setup(t)
	f.write(t, "a.txt", "a")
	require.NoError(t, f.s.Add([]string{"a.txt"}))

	orig := workspace.Rename
	workspace.Rename = func(string, string) error { return os.ErrPermission }
	_, err := f.s.Commit("broken")
	workspace.Rename = orig

	assert.True(t, stderrors.Is(err, errors.ErrIO))
	f.reopen(t)

	status, err := f.s.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, status.Added)
	log, err := f.s.Log("")
	require.NoError(t, err)
	assert.Empty(t, log)

	_, err = f.s.Commit("works")
	assert.NoError(t, err)
}

func TestCleanup(t *testing.T) {
	f := setup(t)
	c1 := f.commit(t, "first", map[string]string{"a.txt": "a"})
	orphan := filepath.Join(f.cfg.CommitsDir(), "2020.01.01_00.00.00.000")
	require.NoError(t, os.MkdirAll(orphan, 0o755))

	removed, err := f.s.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, []string{"2020.01.01_00.00.00.000"}, removed)

	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.cfg.CommitsDir(), c1.Name()))
	assert.NoError(t, err)
	_, err = os.Stat(f.cfg.PendingDir())
	assert.NoError(t, err)
}

func TestView_ReleasesDatabase(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.s.Close())
	f.write(t, "a.txt", "a")

	err := View(f.cfg, func(s *Session) error {
		// A second open in the middle of a view hits the database lock.
		_, err := Open(f.cfg)
		assert.True(t, stderrors.Is(err, errors.ErrIO), "got %v", err)
		return s.Add([]string{"a.txt"})
	}, WithClock(f.clock))
	require.NoError(t, err)

	// Between views nothing holds the lock.
	s, err := Open(f.cfg)
	require.NoError(t, err)
	defer s.Close()
	tracked, err := s.Tracked()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, tracked)
}

func TestView_PropagatesError(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.s.Close())

	err := View(f.cfg, func(s *Session) error {
		_, err := s.Commit("empty")
		return err
	})
	assert.True(t, stderrors.Is(err, errors.ErrEmptyCommit))

	s, err := Open(f.cfg)
	require.NoError(t, err)
	s.Close()
}
