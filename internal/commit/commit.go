package commit

import (
	"fmt"
	"slices"

	"tally/internal/errors"
	"tally/internal/index"
)

// State is a commit's position in its lifecycle. Pending -> Sealed is the
// only transition.
type State int

const (
	Pending State = iota
	Sealed
)

func (s State) String() string {
	if s == Sealed {
		return "sealed"
	}
	return "pending"
}

// Commit is a snapshot descriptor. A pending commit collects staged changes;
// once sealed it never changes again.
type Commit struct {
	name    string
	parent  *Commit
	message string
	changed map[string]struct{}
	index   *index.Index
}

// NewRoot returns the pending commit of an empty repository.
func NewRoot() *Commit {
	return &Commit{
		changed: make(map[string]struct{}),
		index:   index.New(),
	}
}

// Restore rebuilds a commit from persisted fields. An empty name yields a
// pending commit.
func Restore(name string, parent *Commit, message string, changed []string, ix *index.Index) *Commit {
	c := &Commit{
		name:    name,
		parent:  parent,
		message: message,
		changed: make(map[string]struct{}, len(changed)),
		index:   ix,
	}
	for _, p := range changed {
		c.changed[p] = struct{}{}
	}
	return c
}

func (c *Commit) Name() string        { return c.name }
func (c *Commit) Message() string     { return c.message }
func (c *Commit) Parent() *Commit     { return c.parent }
func (c *Commit) Index() *index.Index { return c.index }

func (c *Commit) State() State {
	if c.name == "" {
		return Pending
	}
	return Sealed
}

// ParentName returns the parent's name, or "" for the root commit.
func (c *Commit) ParentName() string {
	if c.parent == nil {
		return ""
	}
	return c.parent.name
}

func (c *Commit) String() string {
	if c.State() == Pending {
		return "Commit(pending)"
	}
	return fmt.Sprintf("Commit(%s, %q)", c.name, c.message)
}

func (c *Commit) requirePending(op string) error {
	if c.State() != Pending {
		return errors.Internal(fmt.Sprintf("%s on sealed commit %s", op, c.name), c.name)
	}
	return nil
}

// Stage records path as changed by this commit. Staging twice is the same as
// staging once.
func (c *Commit) Stage(path string) error {
	if err := c.requirePending("stage"); err != nil {
		return err
	}
	c.index.SetOwner(path, index.Pending())
	c.changed[path] = struct{}{}
	return nil
}

// Unstage removes path from the commit's view. It reports whether a staged
// copy of the path exists and must be deleted. A path inherited unchanged
// from the parent is recorded as a removal and reports false. A staged path
// the parent never tracked is forgotten entirely.
func (c *Commit) Unstage(path string) (bool, error) {
	if err := c.requirePending("unstage"); err != nil {
		return false, err
	}
	if !c.Tracks(path) {
		return false, errors.UntrackedPath(path)
	}

	c.index.UnsetOwner(path)
	if _, staged := c.changed[path]; !staged {
		c.changed[path] = struct{}{}
		return false, nil
	}
	if c.parent == nil || !c.parent.Tracks(path) {
		delete(c.changed, path)
	}
	return true, nil
}

// Seal names the commit and freezes its index. It can be called once.
func (c *Commit) Seal(name, message string) error {
	if err := c.requirePending("seal"); err != nil {
		return err
	}
	if name == "" {
		return errors.Internal("seal with empty name", nil)
	}
	c.name = name
	c.message = message
	c.index = c.index.Freeze(name)
	return nil
}

// Derive returns a fresh pending child sharing this commit's index.
func (c *Commit) Derive() *Commit {
	return &Commit{
		parent:  c,
		changed: make(map[string]struct{}),
		index:   c.index.Fork(),
	}
}

func (c *Commit) IsEmpty() bool {
	return len(c.changed) == 0
}

func (c *Commit) OwnerOf(path string) (index.Owner, bool) {
	return c.index.Lookup(path)
}

func (c *Commit) Tracks(path string) bool {
	_, ok := c.index.Lookup(path)
	return ok
}

func (c *Commit) ChangedSincePending(path string) bool {
	_, ok := c.changed[path]
	return ok
}

// Tracked returns every path in the commit's view, sorted.
func (c *Commit) Tracked() []string {
	return c.index.Paths()
}

// Changed returns the changed-path set, sorted.
func (c *Commit) Changed() []string {
	paths := make([]string, 0, len(c.changed))
	for p := range c.changed {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Added returns the changed paths that are still tracked.
func (c *Commit) Added() []string {
	var added []string
	for _, p := range c.Changed() {
		if c.Tracks(p) {
			added = append(added, p)
		}
	}
	return added
}

// Removed returns the changed paths that are no longer tracked.
func (c *Commit) Removed() []string {
	var removed []string
	for _, p := range c.Changed() {
		if !c.Tracks(p) {
			removed = append(removed, p)
		}
	}
	return removed
}
