package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StudyDir holds study entries below the cache root, one subdirectory per
// artifact: <root>/study/<artifact>/<key>.json.
const StudyDir = "study"

// StudyEntry is one cached model answer for a study artifact.
type StudyEntry struct {
	Artifact string    `json:"artifact"`
	Model    string    `json:"model"`
	Content  string    `json:"content"`
	SavedAt  time.Time `json:"saved_at"`
}

// StudyCache stores generated summaries, quizzes and flashcards keyed by
// model and prompt.
type StudyCache struct {
	Dir         string
	StrictPerms bool
}

// KeyFrom builds a cache key from the model name and the full prompt.
func KeyFrom(model string, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

// artifactDir maps an artifact name to a single safe path segment.
func artifactDir(artifact string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(artifact))
	if a == "" {
		return "", errors.New("empty artifact")
	}
	for _, r := range a {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", errors.New("invalid artifact name: " + artifact)
		}
	}
	return a, nil
}

func (c *StudyCache) pathFor(artifact, key string) (string, error) {
	if c == nil || c.Dir == "" {
		return "", errors.New("cache dir not configured")
	}
	a, err := artifactDir(artifact)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Dir, StudyDir, a, key+".json"), nil
}

// Get returns the cached entry for artifact and key. A hit refreshes the
// file mtime so age based purging keeps entries that are still in use.
// Unreadable or foreign entries count as misses.
func (c *StudyCache) Get(_ context.Context, artifact, key string) (*StudyEntry, bool, error) {
	p, err := c.pathFor(artifact, key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false, nil
	}
	var e StudyEntry
	if err := json.Unmarshal(b, &e); err != nil || strings.TrimSpace(e.Content) == "" {
		return nil, false, nil
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return &e, true, nil
}

// Save writes e under its artifact. SavedAt defaults to now.
func (c *StudyCache) Save(_ context.Context, key string, e StudyEntry) error {
	p, err := c.pathFor(e.Artifact, key)
	if err != nil {
		return err
	}
	if err := mkdir(filepath.Dir(p), c.StrictPerms); err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, fileMode(c.StrictPerms))
}
