// Package index implements the versioned path -> owner table shared along the
// commit chain.
//
// Every sealed commit owns a frozen Snapshot. A pending commit forked from it
// shares that snapshot and records its own writes in a private overlay; on
// seal the overlay is folded into a new snapshot, so the table is copied once
// per seal and never per staged path.
package index

import (
	"maps"
	"slices"
)

// Owner names the commit whose storage holds a path's content. The zero
// value is the pending commit under construction.
type Owner struct {
	name string
}

// Pending is the owner of paths staged in the commit being built.
func Pending() Owner {
	return Owner{}
}

// Sealed is the owner of paths whose content lives in the named commit.
func Sealed(name string) Owner {
	return Owner{name: name}
}

func (o Owner) IsPending() bool {
	return o.name == ""
}

// Name returns the sealed commit name, or "" for Pending.
func (o Owner) Name() string {
	return o.name
}

func (o Owner) String() string {
	if o.IsPending() {
		return "pending"
	}
	return o.name
}

// Snapshot is an immutable table of sealed owners. It is never written after
// construction, which is what makes sharing it between commits safe.
type Snapshot struct {
	owners map[string]string
}

var emptySnapshot = &Snapshot{owners: map[string]string{}}

type overlayEntry struct {
	owner   Owner
	removed bool
}

// Index is one commit's view of the table.
type Index struct {
	base    *Snapshot
	overlay map[string]overlayEntry
}

func New() *Index {
	return &Index{
		base:    emptySnapshot,
		overlay: make(map[string]overlayEntry),
	}
}

func (ix *Index) Lookup(path string) (Owner, bool) {
	if e, ok := ix.overlay[path]; ok {
		if e.removed {
			return Owner{}, false
		}
		return e.owner, true
	}
	name, ok := ix.base.owners[path]
	if !ok {
		return Owner{}, false
	}
	return Sealed(name), true
}

func (ix *Index) SetOwner(path string, owner Owner) {
	ix.overlay[path] = overlayEntry{owner: owner}
}

func (ix *Index) UnsetOwner(path string) {
	if _, inBase := ix.base.owners[path]; inBase {
		ix.overlay[path] = overlayEntry{removed: true}
		return
	}
	delete(ix.overlay, path)
}

// Fork returns a new index sharing the receiver's frozen snapshot. Writes to
// the fork stay in its own overlay. Forking an index with unsealed writes
// carries those writes over by value.
func (ix *Index) Fork() *Index {
	return &Index{
		base:    ix.base,
		overlay: maps.Clone(ix.overlay),
	}
}

// Freeze folds the overlay into a new snapshot, resolving Pending owners to
// name. The receiver is left untouched.
func (ix *Index) Freeze(name string) *Index {
	if len(ix.overlay) == 0 {
		return &Index{base: ix.base, overlay: make(map[string]overlayEntry)}
	}
	owners := maps.Clone(ix.base.owners)
	for path, e := range ix.overlay {
		switch {
		case e.removed:
			delete(owners, path)
		case e.owner.IsPending():
			owners[path] = name
		default:
			owners[path] = e.owner.name
		}
	}
	return &Index{
		base:    &Snapshot{owners: owners},
		overlay: make(map[string]overlayEntry),
	}
}

func (ix *Index) Len() int {
	n := len(ix.base.owners)
	for path, e := range ix.overlay {
		_, inBase := ix.base.owners[path]
		switch {
		case e.removed && inBase:
			n--
		case !e.removed && !inBase:
			n++
		}
	}
	return n
}

// Paths returns every tracked path in lexicographic order.
func (ix *Index) Paths() []string {
	paths := make([]string, 0, ix.Len())
	for path := range ix.base.owners {
		if e, ok := ix.overlay[path]; ok && e.removed {
			continue
		}
		paths = append(paths, path)
	}
	for path, e := range ix.overlay {
		if _, inBase := ix.base.owners[path]; inBase || e.removed {
			continue
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// Entry is one row of the table.
type Entry struct {
	Path  string
	Owner Owner
}

// Entries returns the table in path order.
func (ix *Index) Entries() []Entry {
	paths := ix.Paths()
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		owner, _ := ix.Lookup(p)
		entries = append(entries, Entry{Path: p, Owner: owner})
	}
	return entries
}
