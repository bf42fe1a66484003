// Package session runs one repository operation per invocation. Every
// operation loads the persisted state, applies the change, asks the
// workspace to move bytes and persists the state.
//
// Bytes that are created (staged copies, sealed folders, restored working
// files) are written before the state. Bytes the previous state still
// refers to are deleted only after the new state is saved, so an
// interrupted operation leaves orphans for Cleanup rather than a state that
// points at missing files.
package session

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"tally/internal/commit"
	"tally/internal/config"
	"tally/internal/errors"
	"tally/internal/repository"
	repostore "tally/internal/repository/storage"
	"tally/internal/storage"
	"tally/internal/workspace"
)

type Session struct {
	Root      string
	Config    *config.Config
	Workspace *workspace.LocalWorkspace
	Store     *repostore.Store
	Logger    *zap.Logger

	db  *badger.DB
	now func() time.Time
}

// Status is the result of a status operation.
type Status struct {
	Head      string
	Added     []string
	Removed   []string
	Untracked []string
}

func newSession(cfg *config.Config, opts []Option) (*Session, error) {
	s := &Session{
		Root:   cfg.Root,
		Config: cfg,
		Logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	ws, err := workspace.NewLocalWorkspace(cfg, s.Logger)
	if err != nil {
		return nil, errors.Internal("creating workspace", err.Error())
	}
	s.Workspace = ws
	return s, nil
}

func (s *Session) openStore() error {
	codec, err := storage.NewCodec(storage.CompressionOptions{
		MinSize: s.Config.Compression.MinSize,
		Level:   s.Config.Compression.Level,
	})
	if err != nil {
		return errors.Internal("creating codec", err.Error())
	}

	db, err := openDB(s.Config.DBPath())
	if err != nil {
		return errors.IO("opening state database", err)
	}
	s.db = db
	s.Store = repostore.NewStore(db, codec)
	return nil
}

// Init creates an empty repository at cfg.Root. It refuses to touch an
// existing one.
func Init(cfg *config.Config, opts ...Option) error {
	s, err := newSession(cfg, opts)
	if err != nil {
		return err
	}
	if s.Workspace.Exists() {
		return errors.Usage("repository already exists in " + cfg.Root)
	}

	if err := s.Workspace.Initialize(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return errors.IO("writing config", err)
	}
	if err := s.openStore(); err != nil {
		return err
	}
	defer s.Close()

	if err := s.Store.Init(); err != nil {
		return err
	}
	s.Logger.Info("Initialized repository", zap.String("root", cfg.Root))
	return nil
}

// Open attaches to the repository at cfg.Root.
func Open(cfg *config.Config, opts ...Option) (*Session, error) {
	s, err := newSession(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Workspace.Check(); err != nil {
		return nil, err
	}
	if err := s.openStore(); err != nil {
		return nil, err
	}
	return s, nil
}

// View opens the repository, runs fn and closes it again. The state
// database is locked only while fn runs.
func View(cfg *config.Config, fn func(*Session) error, opts ...Option) error {
	s, err := Open(cfg, opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errors.IO("closing state database", err)
	}
	return nil
}

func (s *Session) load() (*repository.State, error) {
	st, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	st.SetClock(s.now)
	return st, nil
}

// Add stages working files.
func (s *Session) Add(paths []string) error {
	if len(paths) == 0 {
		return errors.Usage("nothing to add")
	}
	st, err := s.load()
	if err != nil {
		return err
	}
	if err := st.Stage(paths); err != nil {
		return err
	}
	if err := s.Workspace.RequireFiles(paths); err != nil {
		return err
	}
	if err := s.Workspace.Stage(paths); err != nil {
		return err
	}
	if err := s.Store.Save(st); err != nil {
		return err
	}
	s.Logger.Info("Staged files", zap.Int("count", len(paths)))
	return nil
}

// Remove stages the removal of tracked paths. Working files are left alone.
func (s *Session) Remove(paths []string) error {
	if len(paths) == 0 {
		return errors.Usage("nothing to remove")
	}
	st, err := s.load()
	if err != nil {
		return err
	}
	staged, err := st.Unstage(paths)
	if err != nil {
		return err
	}
	if err := s.Store.Save(st); err != nil {
		return err
	}
	if err := s.Workspace.Unstage(staged); err != nil {
		s.Logger.Warn("Staged copies left behind", zap.Strings("paths", staged), zap.Error(err))
		return err
	}
	s.Logger.Info("Unstaged files", zap.Int("count", len(paths)), zap.Int("copies_deleted", len(staged)))
	return nil
}

// Commit seals the pending changes under message.
func (s *Session) Commit(message string) (*commit.Commit, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	c, err := st.Seal(message)
	if err != nil {
		return nil, err
	}
	if err := s.Workspace.Seal(c.Name()); err != nil {
		return nil, err
	}
	if err := s.Store.Save(st); err != nil {
		if uerr := s.Workspace.Unseal(c.Name()); uerr != nil {
			s.Logger.Error("Sealed folder left behind", zap.String("commit", c.Name()), zap.Error(uerr))
		}
		return nil, err
	}
	s.Logger.Info("Committed", zap.String("commit", c.Name()))
	return c, nil
}

// Reset drops every commit newer than target and makes target HEAD. The
// working tree is not touched.
func (s *Session) Reset(target string) ([]*commit.Commit, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	removed, err := st.Rollback(target)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Save(st); err != nil {
		return nil, err
	}

	names := make([]string, len(removed))
	for i, c := range removed {
		names[i] = c.Name()
	}
	if err := s.Workspace.Drop(names); err != nil {
		s.Logger.Warn("Commit folders left behind", zap.Strings("commits", names), zap.Error(err))
		return nil, err
	}
	s.Logger.Info("Reset", zap.String("head", target), zap.Int("dropped", len(removed)))
	return removed, nil
}

// CheckoutRevision makes the working tree reflect target.
func (s *Session) CheckoutRevision(target string) error {
	st, err := s.load()
	if err != nil {
		return err
	}
	plan, err := st.CheckoutRevision(target)
	if err != nil {
		return err
	}
	if err := s.Workspace.Restore(restorePlan(plan)); err != nil {
		return err
	}
	if err := s.Store.Save(st); err != nil {
		return err
	}
	s.Logger.Info("Checked out revision", zap.String("head", target), zap.Stringer("mode", st.Mode()))
	return nil
}

// CheckoutFiles restores paths to their last committed content.
func (s *Session) CheckoutFiles(paths []string) error {
	if len(paths) == 0 {
		return errors.Usage("nothing to check out")
	}
	st, err := s.load()
	if err != nil {
		return err
	}
	plan, err := st.CheckoutFiles(paths)
	if err != nil {
		return err
	}
	if err := s.Workspace.Restore(restorePlan(plan)); err != nil {
		return err
	}
	s.Logger.Info("Checked out files", zap.Int("count", len(paths)))
	return nil
}

func restorePlan(plan map[string]*commit.Commit) map[string]string {
	out := make(map[string]string, len(plan))
	for p, c := range plan {
		if c == nil {
			out[p] = ""
			continue
		}
		out[p] = c.Name()
	}
	return out
}

// Log lists history from HEAD, newest first, down to but excluding from.
func (s *Session) Log(from string) ([]*commit.Commit, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Log(from)
}

// Status reports staged additions and removals plus working files that are
// neither tracked nor staged.
func (s *Session) Status() (*Status, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	added, removed, err := st.Status()
	if err != nil {
		return nil, err
	}

	pending := st.Pending()
	untracked, err := s.Workspace.Untracked(func(p string) bool {
		return pending.Tracks(p) || pending.ChangedSincePending(p)
	})
	if err != nil {
		return nil, err
	}

	return &Status{
		Head:      st.Head(),
		Added:     added,
		Removed:   removed,
		Untracked: untracked,
	}, nil
}

// Tracked lists the paths the pending commit tracks.
func (s *Session) Tracked() ([]string, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Pending().Tracked(), nil
}

// Head returns the current HEAD name and attach mode.
func (s *Session) Head() (string, repository.Mode, error) {
	st, err := s.load()
	if err != nil {
		return "", repository.Attached, err
	}
	return st.Head(), st.Mode(), nil
}

// Cleanup deletes commit folders no sealed commit refers to.
func (s *Session) Cleanup() ([]string, error) {
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	orphans, err := s.Workspace.Orphans(func(name string) bool {
		_, ok := st.Commit(name)
		return ok
	})
	if err != nil {
		return nil, err
	}
	if err := s.Workspace.Drop(orphans); err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		s.Logger.Info("Removed orphaned commit folders", zap.Strings("commits", orphans))
	}
	return orphans, nil
}
