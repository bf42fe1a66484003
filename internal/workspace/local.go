// internal/workspace/local.go
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"tally/internal/config"
	"tally/internal/errors"
)

// PendingFolder is the commits/ entry holding staged copies.
const PendingFolder = "pending"

// LocalWorkspace moves file bytes between the working tree and the commit
// folders. Paths handed to it are root-relative and slash separated.
type LocalWorkspace struct {
	Root   string
	Logger *zap.Logger

	cfg      *config.Config
	ignore   []string
	verified *lru.Cache[string, struct{}] // commit folders known to exist
}

func NewLocalWorkspace(cfg *config.Config, logger *zap.Logger) (*LocalWorkspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, struct{}](cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("creating folder cache: %w", err)
	}

	ignore := []string{config.RepoDirName, ".git", cfg.Storage.Dir}
	ignore = append(ignore, cfg.Ignore...)

	return &LocalWorkspace{
		Root:     cfg.Root,
		Logger:   logger,
		cfg:      cfg,
		ignore:   ignore,
		verified: cache,
	}, nil
}

func (w *LocalWorkspace) abs(rel string) string {
	return filepath.Join(w.Root, filepath.FromSlash(rel))
}

func (w *LocalWorkspace) commitDir(name string) string {
	return filepath.Join(w.cfg.CommitsDir(), name)
}

// Exists reports whether the repository directory is present.
func (w *LocalWorkspace) Exists() bool {
	info, err := Stat(w.cfg.RepoDir())
	return err == nil && info.IsDir()
}

// Initialize creates the storage layout.
func (w *LocalWorkspace) Initialize() error {
	dirs := []string{filepath.Dir(w.cfg.ConfigPath()), w.cfg.RepoDir(), w.cfg.CommitsDir(), w.cfg.PendingDir()}
	for _, dir := range dirs {
		if err := MkdirAll(dir, 0o755); err != nil {
			return errors.IO("creating "+dir, err)
		}
	}
	return nil
}

// Check verifies the storage layout is complete.
func (w *LocalWorkspace) Check() error {
	for _, dir := range []string{w.cfg.RepoDir(), w.cfg.CommitsDir(), w.cfg.PendingDir(), w.cfg.DBPath()} {
		info, err := Stat(dir)
		if err != nil {
			return errors.RepositoryCorrupt("missing "+dir, err)
		}
		if !info.IsDir() {
			return errors.RepositoryCorrupt(dir+" is not a directory", nil)
		}
	}
	return nil
}

// ShouldIgnore checks if a root-relative slash path should be ignored
func (w *LocalWorkspace) ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		for _, pattern := range w.ignore {
			if ok, _ := path.Match(pattern, part); ok {
				return true
			}
		}
	}
	for _, pattern := range w.ignore {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// relative maps a command-line argument, relative to base, to an absolute
// and a root-relative slash path.
func (w *LocalWorkspace) relative(base, arg string) (string, string, error) {
	absPath := arg
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(base, arg)
	}
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", "", errors.Usage(fmt.Sprintf("%s is outside the repository", arg))
	}
	rel := filepath.ToSlash(relPath)
	if w.ShouldIgnore(rel) {
		return "", "", errors.Usage(fmt.Sprintf("%s is ignored", arg))
	}
	return absPath, rel, nil
}

// Resolve turns command-line arguments, relative to base, into sorted
// root-relative paths. Existing directories expand to the files below them.
// Paths that do not exist are kept so removals and restores can name them.
func (w *LocalWorkspace) Resolve(base string, args []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(rel string) {
		if _, ok := seen[rel]; !ok {
			seen[rel] = struct{}{}
			out = append(out, rel)
		}
	}

	for _, arg := range args {
		absPath, rel, err := w.relative(base, arg)
		if err != nil {
			return nil, err
		}

		info, err := Stat(absPath)
		if err != nil || !info.IsDir() {
			add(rel)
			continue
		}

		files, err := w.walk(absPath)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}

	slices.Sort(out)
	return out, nil
}

// ResolveTracked is Resolve for commands that act on tracked paths only. An
// argument naming a tracked path is kept. Otherwise it expands to the tracked
// paths below it, whether or not that directory still exists on disk. An
// argument matching nothing tracked is kept as given.
func (w *LocalWorkspace) ResolveTracked(base string, args []string, tracked []string) ([]string, error) {
	known := make(map[string]struct{}, len(tracked))
	for _, p := range tracked {
		known[p] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(rel string) {
		if _, ok := seen[rel]; !ok {
			seen[rel] = struct{}{}
			out = append(out, rel)
		}
	}

	for _, arg := range args {
		_, rel, err := w.relative(base, arg)
		if err != nil {
			return nil, err
		}
		if _, ok := known[rel]; ok {
			add(rel)
			continue
		}

		prefix := rel + "/"
		if rel == "." {
			prefix = ""
		}
		matched := false
		for _, p := range tracked {
			if strings.HasPrefix(p, prefix) {
				add(p)
				matched = true
			}
		}
		if !matched {
			add(rel)
		}
	}

	slices.Sort(out)
	return out, nil
}

// walk lists the non-ignored regular files below dir.
func (w *LocalWorkspace) walk(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(w.Root, p)
		if err != nil {
			return err
		}
		rel := filepath.ToSlash(relPath)
		if w.ShouldIgnore(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.IO("walking "+dir, err)
	}
	return files, nil
}

// RequireFiles checks every path names an existing regular file.
func (w *LocalWorkspace) RequireFiles(paths []string) error {
	for _, p := range paths {
		info, err := Lstat(w.abs(p))
		if IsNotExist(err) {
			return errors.Usage(fmt.Sprintf("%s does not exist", p))
		}
		if err != nil {
			return errors.IO("checking "+p, err)
		}
		if !info.Mode().IsRegular() {
			return errors.Usage(fmt.Sprintf("%s is not a regular file", p))
		}
	}
	return nil
}

// Stage copies working files into the pending folder.
func (w *LocalWorkspace) Stage(paths []string) error {
	for _, p := range paths {
		dst := filepath.Join(w.cfg.PendingDir(), filepath.FromSlash(p))
		if err := copyFile(w.abs(p), dst); err != nil {
			return errors.IO("staging "+p, err)
		}
		w.Logger.Debug("Staged file", zap.String("path", p))
	}
	return nil
}

// Unstage deletes staged copies. Missing copies are not an error.
func (w *LocalWorkspace) Unstage(paths []string) error {
	for _, p := range paths {
		staged := filepath.Join(w.cfg.PendingDir(), filepath.FromSlash(p))
		if err := Remove(staged); err != nil && !IsNotExist(err) {
			return errors.IO("unstaging "+p, err)
		}
		w.pruneEmptyDirs(filepath.Dir(staged), w.cfg.PendingDir())
		w.Logger.Debug("Unstaged file", zap.String("path", p))
	}
	return nil
}

// pruneEmptyDirs removes empty directories from dir up to, not including,
// stop.
func (w *LocalWorkspace) pruneEmptyDirs(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		entries, err := ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Seal moves the pending folder to the commit's folder and starts a new
// empty pending folder.
func (w *LocalWorkspace) Seal(name string) error {
	dst := w.commitDir(name)
	if _, err := Stat(dst); err == nil {
		return errors.CommitNameCollision(name)
	}
	if err := Rename(w.cfg.PendingDir(), dst); err != nil {
		return errors.IO("sealing "+name, err)
	}
	if err := MkdirAll(w.cfg.PendingDir(), 0o755); err != nil {
		return errors.IO("recreating pending folder", err)
	}
	w.verified.Add(name, struct{}{})
	w.Logger.Debug("Sealed commit folder", zap.String("commit", name))
	return nil
}

// Drop deletes commit folders.
func (w *LocalWorkspace) Drop(names []string) error {
	for _, name := range names {
		if name == "" || name == PendingFolder {
			return errors.Internal("refusing to drop folder "+name, name)
		}
		if err := RemoveAll(w.commitDir(name)); err != nil {
			return errors.IO("dropping "+name, err)
		}
		w.verified.Remove(name)
		w.Logger.Debug("Dropped commit folder", zap.String("commit", name))
	}
	return nil
}

func (w *LocalWorkspace) verifyCommit(name string) error {
	if _, ok := w.verified.Get(name); ok {
		return nil
	}
	info, err := Stat(w.commitDir(name))
	if err != nil || !info.IsDir() {
		return errors.RepositoryCorrupt("missing folder for commit "+name, err)
	}
	w.verified.Add(name, struct{}{})
	return nil
}

// Restore writes working files from commit folders. plan maps a path to the
// commit holding its content; an empty name deletes the working file.
func (w *LocalWorkspace) Restore(plan map[string]string) error {
	paths := make([]string, 0, len(plan))
	for p := range plan {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		owner := plan[p]
		if owner == "" {
			if err := Remove(w.abs(p)); err != nil && !IsNotExist(err) {
				return errors.IO("deleting "+p, err)
			}
			w.Logger.Debug("Deleted working file", zap.String("path", p))
			continue
		}

		if err := w.verifyCommit(owner); err != nil {
			return err
		}
		src := filepath.Join(w.commitDir(owner), filepath.FromSlash(p))
		if _, err := Stat(src); err != nil {
			return errors.RepositoryCorrupt(fmt.Sprintf("commit %s has no copy of %s", owner, p), err)
		}
		if err := copyFile(src, w.abs(p)); err != nil {
			return errors.IO("restoring "+p, err)
		}
		w.Logger.Debug("Restored working file", zap.String("path", p), zap.String("commit", owner))
	}
	return nil
}

// Untracked lists working files for which tracked returns false.
func (w *LocalWorkspace) Untracked(tracked func(string) bool) ([]string, error) {
	files, err := w.walk(w.Root)
	if err != nil {
		return nil, err
	}
	var untracked []string
	for _, f := range files {
		if !tracked(f) {
			untracked = append(untracked, f)
		}
	}
	return untracked, nil
}

// Orphans lists commit folders for which known returns false.
func (w *LocalWorkspace) Orphans(known func(string) bool) ([]string, error) {
	entries, err := ReadDir(w.cfg.CommitsDir())
	if err != nil {
		return nil, errors.IO("listing commit folders", err)
	}
	var orphans []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == PendingFolder {
			continue
		}
		if !known(e.Name()) {
			orphans = append(orphans, e.Name())
		}
	}
	return orphans, nil
}

func copyFile(src, dst string) error {
	info, err := Stat(src)
	if err != nil {
		return err
	}
	if err := MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Unseal moves a sealed folder back to pending. It undoes Seal when the
// state recording the commit could not be written.
func (w *LocalWorkspace) Unseal(name string) error {
	if err := Remove(w.cfg.PendingDir()); err != nil && !IsNotExist(err) {
		return errors.IO("clearing pending folder", err)
	}
	if err := Rename(w.commitDir(name), w.cfg.PendingDir()); err != nil {
		return errors.IO("unsealing "+name, err)
	}
	w.verified.Remove(name)
	return nil
}
