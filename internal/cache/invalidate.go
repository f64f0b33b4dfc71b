package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PagesKind names fetched documents in purge results. Any other kind is a
// study artifact name such as "summary" or "quiz".
const PagesKind = "pages"

// ClearDir removes the directory with all contents and recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// Kinds lists the entry kinds present under dir: PagesKind first, then the
// study artifacts in name order.
func Kinds(dir string) ([]string, error) {
	kinds := []string{PagesKind}
	entries, err := os.ReadDir(filepath.Join(dir, StudyDir))
	if errors.Is(err, fs.ErrNotExist) {
		return kinds, nil
	}
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, e := range entries {
		if e.IsDir() {
			artifacts = append(artifacts, e.Name())
		}
	}
	sort.Strings(artifacts)
	return append(kinds, artifacts...), nil
}

// Purge removes entries older than maxAge and reports the count per kind.
// With no kinds every kind under dir is purged. A zero maxAge purges nothing.
func Purge(dir string, maxAge time.Duration, kinds ...string) (map[string]int, error) {
	removed := map[string]int{}
	if maxAge <= 0 {
		return removed, nil
	}
	if len(kinds) == 0 {
		var err error
		if kinds, err = Kinds(dir); err != nil {
			return removed, err
		}
	}
	now := time.Now().UTC()
	for _, k := range kinds {
		var (
			n   int
			err error
		)
		if k == PagesKind {
			n, err = purgePages(dir, now, maxAge)
		} else {
			a, aerr := artifactDir(k)
			if aerr != nil {
				return removed, aerr
			}
			n, err = purgeStudy(filepath.Join(dir, StudyDir, a), now, maxAge)
		}
		if err != nil {
			return removed, err
		}
		removed[k] = n
	}
	return removed, nil
}

// purgePages drops page entries whose SavedAt is older than maxAge, meta and
// body together. Only the top level of dir holds pages.
func purgePages(dir string, now time.Time, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range entries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			continue
		}
		path := filepath.Join(dir, d.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e HTTPEntry
		if err := json.Unmarshal(b, &e); err != nil || now.Sub(e.SavedAt) <= maxAge {
			continue
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".meta.json") + ".body")
	}
	return removed, nil
}

// purgeStudy drops artifact entries by modification time, which Get
// refreshes on every hit.
func purgeStudy(dir string, now time.Time, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range entries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		info, err := d.Info()
		if err != nil || now.Sub(info.ModTime().UTC()) <= maxAge {
			continue
		}
		removed++
		_ = os.Remove(filepath.Join(dir, d.Name()))
	}
	return removed, nil
}
