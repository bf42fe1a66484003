// internal/repository/storage/store.go
package storage

import (
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"tally/internal/commit"
	"tally/internal/errors"
	"tally/internal/index"
	"tally/internal/repository"
	genericStorage "tally/internal/storage"
)

const (
	historyID = "history"
	pendingID = "pending"

	// selfOwner marks a path owned by the commit that carries the record.
	selfOwner = "self"
)

// Store persists a repository.State as two records, written together.
type Store struct {
	store *genericStorage.BadgerStore
}

func NewStore(db *badger.DB, codec *genericStorage.Codec) *Store {
	return &Store{
		store: genericStorage.NewBadgerStore(db, "state", codec),
	}
}

type commitRecord struct {
	Name    string      `json:"name,omitempty"`
	Parent  *string     `json:"parent"`
	Message *string     `json:"message"`
	Changed []string    `json:"changed"`
	Files   [][2]string `json:"files"`
}

type historyRecord struct {
	ID      string         `json:"id"`
	Head    string         `json:"head"`
	Mode    string         `json:"mode"`
	Commits []commitRecord `json:"commits"`
}

func (h *historyRecord) GetID() string { return h.ID }

type pendingRecord struct {
	ID     string       `json:"id"`
	Commit commitRecord `json:"commit"`
}

func (p *pendingRecord) GetID() string { return p.ID }

// Init writes the state of an empty repository. It fails if a state exists.
func (s *Store) Init() error {
	history, pending := encodeState(repository.New())
	err := s.store.Create(history, pending)
	if stderrors.Is(err, genericStorage.ErrExists) {
		return errors.Usage("repository already initialized")
	}
	if err != nil {
		return errors.IO("writing initial state", err)
	}
	return nil
}

// Save writes the whole state in one transaction.
func (s *Store) Save(st *repository.State) error {
	history, pending := encodeState(st)
	if err := s.store.Put(history, pending); err != nil {
		return errors.IO("saving state", err)
	}
	return nil
}

func encodeState(st *repository.State) (*historyRecord, *pendingRecord) {
	history := &historyRecord{
		ID:   historyID,
		Head: st.Head(),
		Mode: st.Mode().String(),
	}
	for _, c := range st.Commits() {
		history.Commits = append(history.Commits, encodeCommit(c))
	}
	pending := &pendingRecord{
		ID:     pendingID,
		Commit: encodeCommit(st.Pending()),
	}
	return history, pending
}

func encodeCommit(c *commit.Commit) commitRecord {
	rec := commitRecord{
		Name:    c.Name(),
		Changed: c.Changed(),
		Files:   make([][2]string, 0, c.Index().Len()),
	}
	if rec.Changed == nil {
		rec.Changed = []string{}
	}
	if p := c.Parent(); p != nil {
		name := p.Name()
		rec.Parent = &name
	}
	if c.State() == commit.Sealed {
		msg := c.Message()
		rec.Message = &msg
	}
	for _, e := range c.Index().Entries() {
		owner := e.Owner.Name()
		if e.Owner.IsPending() || owner == c.Name() {
			owner = selfOwner
		}
		rec.Files = append(rec.Files, [2]string{e.Path, owner})
	}
	return rec
}

// Load reads and validates the persisted state.
func (s *Store) Load() (*repository.State, error) {
	var history historyRecord
	if err := s.get(historyID, &history); err != nil {
		return nil, err
	}
	var pending pendingRecord
	if err := s.get(pendingID, &pending); err != nil {
		return nil, err
	}

	sealed := make(map[string]*commit.Commit, len(history.Commits))
	last := ""
	for _, rec := range history.Commits {
		if rec.Name == "" || rec.Name <= last {
			return nil, errors.RepositoryCorrupt(fmt.Sprintf("commit %q out of order", rec.Name), nil)
		}
		if rec.Message == nil {
			return nil, errors.RepositoryCorrupt("commit "+rec.Name+" has no message", nil)
		}
		c, err := decodeCommit(rec, sealed, index.Sealed(rec.Name))
		if err != nil {
			return nil, err
		}
		sealed[rec.Name] = c
		last = rec.Name
	}

	if pending.Commit.Name != "" {
		return nil, errors.RepositoryCorrupt("pending commit has a name", nil)
	}
	p, err := decodeCommit(pending.Commit, sealed, index.Pending())
	if err != nil {
		return nil, err
	}

	var mode repository.Mode
	switch history.Mode {
	case repository.Attached.String():
		mode = repository.Attached
	case repository.Detached.String():
		mode = repository.Detached
	default:
		return nil, errors.RepositoryCorrupt("unknown mode "+history.Mode, nil)
	}

	return repository.Restore(sealed, history.Head, mode, p)
}

func (s *Store) get(id string, entity any) error {
	if err := s.store.Get(id, entity); err != nil {
		if stderrors.Is(err, genericStorage.ErrNotFound) {
			return errors.RepositoryCorrupt("missing state record "+id, err)
		}
		return errors.RepositoryCorrupt("reading state record "+id, err)
	}
	return nil
}

// decodeCommit rebuilds a commit on top of its already decoded parent. The
// index is forked from the parent's and only the differences are written, so
// reloaded commits share snapshots the way freshly sealed ones do.
func decodeCommit(rec commitRecord, sealed map[string]*commit.Commit, self index.Owner) (*commit.Commit, error) {
	var parent *commit.Commit
	if rec.Parent != nil {
		var ok bool
		parent, ok = sealed[*rec.Parent]
		if !ok {
			return nil, errors.RepositoryCorrupt(fmt.Sprintf("commit %q has unknown parent %q", rec.Name, *rec.Parent), nil)
		}
	}

	ix := index.New()
	if parent != nil {
		ix = parent.Index().Fork()
	}

	files := make(map[string]struct{}, len(rec.Files))
	for _, f := range rec.Files {
		path, ownerName := f[0], f[1]
		if path == "" {
			return nil, errors.RepositoryCorrupt(fmt.Sprintf("commit %q tracks an empty path", rec.Name), nil)
		}
		files[path] = struct{}{}

		owner := self
		if ownerName != selfOwner {
			if _, ok := sealed[ownerName]; !ok {
				return nil, errors.RepositoryCorrupt(fmt.Sprintf("path %s owned by unknown commit %q", path, ownerName), nil)
			}
			owner = index.Sealed(ownerName)
		}
		if current, ok := ix.Lookup(path); !ok || current != owner {
			ix.SetOwner(path, owner)
		}
	}
	for _, path := range ix.Paths() {
		if _, ok := files[path]; !ok {
			ix.UnsetOwner(path)
		}
	}

	message := ""
	if rec.Message != nil {
		message = *rec.Message
	}
	c := commit.Restore("", parent, message, rec.Changed, ix)
	if self.IsPending() {
		return c, nil
	}
	if err := c.Seal(rec.Name, message); err != nil {
		return nil, errors.RepositoryCorrupt("sealing commit "+rec.Name, err)
	}
	return c, nil
}
