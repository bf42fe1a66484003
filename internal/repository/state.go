// Package repository holds the aggregate state of a repository: every sealed
// commit, the HEAD pointer and the single pending commit. It decides which
// commit owns which path; moving bytes is left to the caller.
package repository

import (
	"slices"
	"time"

	"tally/internal/commit"
	"tally/internal/errors"
)

// NameLayout formats commit names. Fixed width and UTC, so string order is
// chronological order.
const NameLayout = "2006.01.02_15.04.05.000"

// Mode says whether the pending commit was derived from HEAD.
type Mode int

const (
	Attached Mode = iota
	Detached
)

func (m Mode) String() string {
	if m == Detached {
		return "detached"
	}
	return "attached"
}

type State struct {
	sealed  map[string]*commit.Commit
	head    string
	mode    Mode
	pending *commit.Commit
	now     func() time.Time
}

// New returns the state of a freshly initialised repository.
func New() *State {
	return &State{
		sealed:  make(map[string]*commit.Commit),
		pending: commit.NewRoot(),
		now:     time.Now,
	}
}

// Restore assembles a state from persisted parts and checks they agree.
func Restore(sealed map[string]*commit.Commit, head string, mode Mode, pending *commit.Commit) (*State, error) {
	if sealed == nil {
		sealed = make(map[string]*commit.Commit)
	}
	if pending == nil || pending.State() != commit.Pending {
		return nil, errors.RepositoryCorrupt("pending commit missing or sealed", nil)
	}
	if head != "" {
		if _, ok := sealed[head]; !ok {
			return nil, errors.RepositoryCorrupt("HEAD points to unknown commit "+head, nil)
		}
	}
	if p := pending.Parent(); p != nil {
		if sealed[p.Name()] != p {
			return nil, errors.RepositoryCorrupt("pending parent is not a sealed commit", nil)
		}
	}
	if mode == Attached && pending.ParentName() != head {
		return nil, errors.RepositoryCorrupt("attached state with pending parent "+pending.ParentName()+" and HEAD "+head, nil)
	}
	if mode == Detached && !pending.IsEmpty() {
		return nil, errors.RepositoryCorrupt("detached state with staged changes", nil)
	}
	return &State{
		sealed:  sealed,
		head:    head,
		mode:    mode,
		pending: pending,
		now:     time.Now,
	}, nil
}

// SetClock replaces the clock used to name commits.
func (s *State) SetClock(now func() time.Time) {
	s.now = now
}

func (s *State) Head() string            { return s.head }
func (s *State) Mode() Mode              { return s.mode }
func (s *State) Pending() *commit.Commit { return s.pending }

// Commit returns the sealed commit with the given name.
func (s *State) Commit(name string) (*commit.Commit, bool) {
	c, ok := s.sealed[name]
	return c, ok
}

// HeadCommit returns the sealed commit HEAD points to, or nil before the
// first commit.
func (s *State) HeadCommit() *commit.Commit {
	return s.sealed[s.head]
}

// Commits returns every sealed commit in name order.
func (s *State) Commits() []*commit.Commit {
	names := make([]string, 0, len(s.sealed))
	for name := range s.sealed {
		names = append(names, name)
	}
	slices.Sort(names)
	commits := make([]*commit.Commit, len(names))
	for i, name := range names {
		commits[i] = s.sealed[name]
	}
	return commits
}

func (s *State) requireAttached() error {
	if s.mode == Detached {
		return errors.DetachedHead(s.head)
	}
	return nil
}

func (s *State) requireCommit(name string) (*commit.Commit, error) {
	c, ok := s.sealed[name]
	if !ok {
		return nil, errors.UnknownCommit(name)
	}
	return c, nil
}

// shiftTo makes name HEAD and rebuilds pending on top of it.
func (s *State) shiftTo(name string) {
	s.head = name
	s.pending = s.sealed[name].Derive()
	s.mode = Attached
}

// Stage marks paths as added or modified in the pending commit.
func (s *State) Stage(paths []string) error {
	if err := s.requireAttached(); err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.pending.Stage(p); err != nil {
			return err
		}
	}
	return nil
}

// Unstage removes paths from the pending view. It returns the paths whose
// staged copies must be deleted.
func (s *State) Unstage(paths []string) ([]string, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}
	for _, p := range paths {
		if !s.pending.Tracks(p) {
			return nil, errors.UntrackedPath(p)
		}
	}

	var staged []string
	for _, p := range paths {
		wasStaged, err := s.pending.Unstage(p)
		if err != nil {
			return nil, err
		}
		if wasStaged {
			staged = append(staged, p)
		}
	}
	return staged, nil
}

// Seal turns the pending commit into a named commit and starts a new
// pending commit on top of it.
func (s *State) Seal(message string) (*commit.Commit, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}
	if s.pending.IsEmpty() {
		return nil, errors.EmptyCommit()
	}

	name := s.now().UTC().Format(NameLayout)
	if _, exists := s.sealed[name]; exists {
		return nil, errors.CommitNameCollision(name)
	}
	if name <= s.head {
		// The clock went backwards; the name would break history order.
		return nil, errors.CommitNameCollision(name)
	}

	c := s.pending
	if err := c.Seal(name, message); err != nil {
		return nil, err
	}
	s.sealed[name] = c
	s.shiftTo(name)
	return c, nil
}

// Rollback drops every commit newer than target and moves HEAD to it. The
// dropped commits are returned oldest first.
func (s *State) Rollback(target string) ([]*commit.Commit, error) {
	if _, err := s.requireCommit(target); err != nil {
		return nil, err
	}
	if !s.pending.IsEmpty() {
		return nil, errors.UncommittedChanges()
	}

	var removed []*commit.Commit
	for _, c := range s.Commits() {
		if c.Name() > target {
			removed = append(removed, c)
			delete(s.sealed, c.Name())
		}
	}
	s.shiftTo(target)
	return removed, nil
}

// CheckoutRevision points HEAD at target without touching the pending
// commit. For every path visible now or at target it reports the commit to
// restore from, or nil when the path must be deleted.
func (s *State) CheckoutRevision(target string) (map[string]*commit.Commit, error) {
	to, err := s.requireCommit(target)
	if err != nil {
		return nil, err
	}
	if !s.pending.IsEmpty() {
		return nil, errors.UncommittedChanges()
	}

	affected := make(map[string]struct{})
	for _, p := range s.pending.Tracked() {
		affected[p] = struct{}{}
	}
	if current := s.HeadCommit(); current != nil {
		for _, p := range current.Tracked() {
			affected[p] = struct{}{}
		}
	}
	for _, p := range to.Tracked() {
		affected[p] = struct{}{}
	}

	result := make(map[string]*commit.Commit, len(affected))
	for p := range affected {
		owner, ok := to.OwnerOf(p)
		if !ok {
			result[p] = nil
			continue
		}
		src, ok := s.sealed[owner.Name()]
		if !ok {
			return nil, errors.RepositoryCorrupt("path "+p+" owned by unknown commit "+owner.Name(), nil)
		}
		result[p] = src
	}

	s.head = target
	if target == s.pending.ParentName() {
		s.mode = Attached
	} else {
		s.mode = Detached
	}
	return result, nil
}

// CheckoutFiles reports, for each path, the sealed commit holding its last
// committed content.
func (s *State) CheckoutFiles(paths []string) (map[string]*commit.Commit, error) {
	if err := s.requireAttached(); err != nil {
		return nil, err
	}
	result := make(map[string]*commit.Commit, len(paths))
	for _, p := range paths {
		if s.pending.ChangedSincePending(p) {
			return nil, errors.UncommittedLocalChange(p)
		}
		owner, ok := s.pending.OwnerOf(p)
		if !ok {
			return nil, errors.UntrackedPath(p)
		}
		src, ok := s.sealed[owner.Name()]
		if !ok {
			return nil, errors.RepositoryCorrupt("path "+p+" owned by unknown commit "+owner.Name(), nil)
		}
		result[p] = src
	}
	return result, nil
}

// Log walks history from HEAD, newest first, stopping before from. An empty
// from walks to the root.
func (s *State) Log(from string) ([]*commit.Commit, error) {
	if from != "" {
		if _, err := s.requireCommit(from); err != nil {
			return nil, err
		}
		if from > s.head {
			return nil, errors.FutureCommit(from, s.head)
		}
	}

	var log []*commit.Commit
	for c := s.HeadCommit(); c != nil && c.Name() != from; c = c.Parent() {
		log = append(log, c)
	}
	return log, nil
}

// Status lists the paths the pending commit adds and removes.
func (s *State) Status() (added, removed []string, err error) {
	if err := s.requireAttached(); err != nil {
		return nil, nil, err
	}
	return s.pending.Added(), s.pending.Removed(), nil
}
