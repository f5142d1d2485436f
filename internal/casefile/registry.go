// Package casefile manages the on-disk catalogue of cases. Each case is
// a directory under the memory root holding its vector index; a small
// sidecar record at the root tracks which cases are pinned and which
// are soft-deleted. Trashed cases disappear from listings immediately
// and their directories are swept from disk at the next startup.
package casefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/sanitize"
)

// recordFile is the sidecar tracking pinned and trashed cases.
const recordFile = "dossier.json"

var (
	// ErrNotFound indicates the case directory does not exist.
	ErrNotFound = errors.New("case not found")

	// ErrExists indicates the target case name is already taken.
	ErrExists = errors.New("case already exists")
)

// Case is one catalogue entry.
type Case struct {
	Name   string `json:"name"`
	Pinned bool   `json:"pinned"`
}

// record is the persisted sidecar shape.
type record struct {
	Pinned []string `json:"pinned"`
	Trash  []string `json:"trash"`
}

// Registry is the case catalogue rooted at one directory.
type Registry struct {
	root   string
	logger *zap.Logger

	mu  sync.Mutex
	rec record
}

// NewRegistry opens the catalogue at root, creating the directory if
// needed. An unreadable or corrupt sidecar degrades to an empty record
// rather than blocking startup.
func NewRegistry(root string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}

	r := &Registry{root: root, logger: logger}
	r.rec = r.loadRecord()
	return r, nil
}

// Root returns the memory root directory.
func (r *Registry) Root() string {
	return r.root
}

// Dir returns the directory a case's index lives in.
func (r *Registry) Dir(name string) string {
	return filepath.Join(r.root, name)
}

func (r *Registry) loadRecord() record {
	var rec record
	data, err := os.ReadFile(filepath.Join(r.root, recordFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("sidecar unreadable, starting empty", zap.Error(err))
		}
		return rec
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn("sidecar corrupt, starting empty", zap.Error(err))
		return record{}
	}
	return rec
}

func (r *Registry) saveRecordLocked() error {
	data, err := json.MarshalIndent(r.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	path := filepath.Join(r.root, recordFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return os.Rename(tmp, path)
}

// List returns the visible cases: pinned first, each group sorted
// case-insensitively. Trashed cases and directories whose names start
// with an underscore are hidden.
func (r *Registry) List() ([]Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read memory root: %w", err)
	}

	trashed := toSet(r.rec.Trash)
	pinned := toSet(r.rec.Pinned)

	var cases []Case
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_") || trashed[name] {
			continue
		}
		cases = append(cases, Case{Name: name, Pinned: pinned[name]})
	}

	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].Pinned != cases[j].Pinned {
			return cases[i].Pinned
		}
		return strings.ToLower(cases[i].Name) < strings.ToLower(cases[j].Name)
	})
	return cases, nil
}

// Create makes the directory for a new case and returns the sanitized
// name actually used.
func (r *Registry) Create(name string) (string, error) {
	clean := sanitize.CaseName(name)
	dir := r.Dir(clean)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, clean)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create case dir: %w", err)
	}
	r.logger.Info("case created", zap.String("case", clean))
	return clean, nil
}

// Exists reports whether the case has a directory on disk.
func (r *Registry) Exists(name string) bool {
	info, err := os.Stat(r.Dir(name))
	return err == nil && info.IsDir()
}

// Rename moves a case directory to a new sanitized name, carrying its
// pinned flag along. The caller must release any open store handle for
// the case before renaming.
func (r *Registry) Rename(oldName, newName string) (string, error) {
	clean := sanitize.CaseName(newName)
	if clean == oldName {
		return clean, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Exists(oldName) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if r.Exists(clean) {
		return "", fmt.Errorf("%w: %s", ErrExists, clean)
	}
	if err := os.Rename(r.Dir(oldName), r.Dir(clean)); err != nil {
		return "", fmt.Errorf("rename case: %w", err)
	}

	if replaceInList(r.rec.Pinned, oldName, clean) || replaceInList(r.rec.Trash, oldName, clean) {
		if err := r.saveRecordLocked(); err != nil {
			r.logger.Warn("sidecar update after rename failed", zap.Error(err))
		}
	}
	r.logger.Info("case renamed",
		zap.String("from", oldName), zap.String("to", clean))
	return clean, nil
}

// Pin marks or unmarks a case as pinned.
func (r *Registry) Pin(name string, pinned bool) error {
	if !r.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.Pinned = removeFromList(r.rec.Pinned, name)
	if pinned {
		r.rec.Pinned = append(r.rec.Pinned, name)
	}
	return r.saveRecordLocked()
}

// Trash soft-deletes a case. It vanishes from listings at once; the
// directory stays on disk until the next Sweep. The caller must release
// any open store handle first.
func (r *Registry) Trash(name string) error {
	if !r.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.Pinned = removeFromList(r.rec.Pinned, name)
	if !toSet(r.rec.Trash)[name] {
		r.rec.Trash = append(r.rec.Trash, name)
	}
	if err := r.saveRecordLocked(); err != nil {
		return err
	}
	r.logger.Info("case trashed", zap.String("case", name))
	return nil
}

// Sweep removes trashed case directories from disk and empties the
// trash list. Meant to run at startup. A directory that fails to delete
// stays in the trash for the next sweep.
func (r *Registry) Sweep() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []string
	removed := 0
	for _, name := range r.rec.Trash {
		if !sanitize.Valid(name) {
			// Never follow an unsanitized name into the filesystem.
			r.logger.Warn("skipping invalid trash entry", zap.String("case", name))
			continue
		}
		if err := os.RemoveAll(r.Dir(name)); err != nil {
			r.logger.Warn("sweep failed", zap.String("case", name), zap.Error(err))
			kept = append(kept, name)
			continue
		}
		removed++
	}
	r.rec.Trash = kept
	if err := r.saveRecordLocked(); err != nil {
		return removed, err
	}
	if removed > 0 {
		r.logger.Info("trash swept", zap.Int("removed", removed))
	}
	return removed, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func removeFromList(list []string, name string) []string {
	out := list[:0]
	for _, n := range list {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func replaceInList(list []string, oldName, newName string) bool {
	for i, n := range list {
		if n == oldName {
			list[i] = newName
			return true
		}
	}
	return false
}
