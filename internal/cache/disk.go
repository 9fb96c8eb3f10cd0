package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var errKeyMismatch = errors.New("cache file holds a different key")

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

type diskStore struct {
	dir      string
	maxBytes int64
}

func (d *diskStore) path(kind Kind, hash string) string {
	return filepath.Join(d.dir, string(kind), hash+".json")
}

func (d *diskStore) read(kind Kind, hash string) (*Entry, error) {
	data, err := os.ReadFile(d.path(kind, hash))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// write replaces the file atomically through a temp file in the same directory.
func (d *diskStore) write(hash string, e *Entry) error {
	dir := filepath.Join(d.dir, string(e.Key.Kind))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+hash+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), d.path(e.Key.Kind, hash)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (d *diskStore) remove(kind Kind, hash string) error {
	if err := os.Remove(d.path(kind, hash)); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// clear removes the per-kind directories only; other files in dir are left alone.
func (d *diskStore) clear() error {
	for _, k := range Kinds {
		if err := os.RemoveAll(filepath.Join(d.dir, string(k))); err != nil {
			return err
		}
	}
	return nil
}

type diskFile struct {
	kind  Kind
	hash  string
	path  string
	size  int64
	entry *Entry
	err   error
}

// list loads every entry file. Unreadable files are returned with err set.
func (d *diskStore) list() ([]diskFile, error) {
	var files []diskFile
	for _, k := range Kinds {
		dir := filepath.Join(d.dir, string(k))
		des, err := os.ReadDir(dir)
		if isNotExist(err) {
			continue
		}
		if err != nil {
			return files, err
		}
		for _, de := range des {
			name := de.Name()
			if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
				continue
			}
			f := diskFile{kind: k, hash: strings.TrimSuffix(name, ".json"), path: filepath.Join(dir, name)}
			if info, err := de.Info(); err == nil {
				f.size = info.Size()
			}
			f.entry, f.err = d.read(k, f.hash)
			if isNotExist(f.err) {
				continue
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// overBudget returns the oldest files whose removal brings the total size
// within maxBytes.
func (d *diskStore) overBudget(files []diskFile) []diskFile {
	if d.maxBytes <= 0 {
		return nil
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= d.maxBytes {
		return nil
	}
	sorted := append([]diskFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].entry.CreatedAt.Before(sorted[j].entry.CreatedAt)
	})
	var victims []diskFile
	for _, f := range sorted {
		if total <= d.maxBytes {
			break
		}
		victims = append(victims, f)
		total -= f.size
	}
	return victims
}
