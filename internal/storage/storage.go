// Package storage persists position records as one JSON document per
// position, partitioned into an open directory and an archive directory.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/models"
)

// FileStore is the JSON file-per-record implementation of Interface. Access
// is single-process; concurrent external mutation is undefined behavior.
type FileStore struct {
	openDir    string
	archiveDir string
	logger     *logrus.Logger
}

// NewFileStore creates both directories if needed.
func NewFileStore(openDir, archiveDir string, logger *logrus.Logger) (*FileStore, error) {
	for _, dir := range []string{openDir, archiveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
		}
	}
	return &FileStore{openDir: openDir, archiveDir: archiveDir, logger: logger}, nil
}

// Create assigns a slug and writes the record to the open directory.
func (s *FileStore) Create(pos *models.Position) error {
	if pos.Slug == "" {
		slug, err := s.nextSlug(pos)
		if err != nil {
			return err
		}
		pos.Slug = slug
	}
	if err := writeRecord(s.openPath(pos.Slug), pos); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"slug": pos.Slug, "strategy": pos.Strategy}).
		Info("created position record")
	return nil
}

// Save rewrites an existing open record.
func (s *FileStore) Save(pos *models.Position) error {
	if pos.Slug == "" {
		return fmt.Errorf("saving position %s: no slug assigned", pos.ID)
	}
	if _, err := os.Stat(s.openPath(pos.Slug)); err != nil {
		return fmt.Errorf("saving position %s: %w", pos.Slug, ErrNotFound)
	}
	return writeRecord(s.openPath(pos.Slug), pos)
}

// Archive writes the record to the archive directory, then removes the open
// file. Ordering matters: the open file stays in place until the archive
// write has succeeded.
func (s *FileStore) Archive(pos *models.Position) error {
	if pos.Slug == "" {
		return fmt.Errorf("archiving position %s: no slug assigned", pos.ID)
	}
	if err := writeRecord(s.archivePath(pos.Slug), pos); err != nil {
		return fmt.Errorf("archiving position %s: %w", pos.Slug, err)
	}
	if err := os.Remove(s.openPath(pos.Slug)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing open record %s after archive: %w", pos.Slug, err)
	}
	s.logger.WithField("slug", pos.Slug).Info("archived position record")
	return nil
}

// Get checks the open directory first, then the archive.
func (s *FileStore) Get(slug string) (*models.Position, error) {
	for _, path := range []string{s.openPath(slug), s.archivePath(slug)} {
		pos, err := readRecord(path)
		if err == nil {
			return pos, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading position %s: %w", slug, err)
		}
	}
	return nil, fmt.Errorf("position %s: %w", slug, ErrNotFound)
}

// ListOpen returns all open records sorted by slug.
func (s *FileStore) ListOpen() ([]*models.Position, error) {
	return s.listDir(s.openDir)
}

// ListArchived returns all archived records sorted by slug.
func (s *FileStore) ListArchived() ([]*models.Position, error) {
	return s.listDir(s.archiveDir)
}

func (s *FileStore) listDir(dir string) ([]*models.Position, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var positions []*models.Position
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		pos, err := readRecord(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.WithError(err).WithField("file", e.Name()).
				Warn("skipping unreadable position record")
			continue
		}
		if pos.Slug == "" {
			pos.Slug = strings.TrimSuffix(e.Name(), ".json")
		}
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Slug < positions[j].Slug })
	return positions, nil
}

// nextSlug derives <ticker>_<openedDate> and appends -2, -3, ... until the
// name is unused in both directories. Same-ticker same-day positions are a
// real collision case, so identity never relies on the bare tuple.
func (s *FileStore) nextSlug(pos *models.Position) (string, error) {
	base := fmt.Sprintf("%s_%s", strings.ToLower(pos.Ticker), pos.Opened.Format(models.DateLayout))
	slug := base
	for n := 2; ; n++ {
		if !s.slugTaken(slug) {
			return slug, nil
		}
		if n > 1000 {
			return "", fmt.Errorf("no free slug for %s", base)
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *FileStore) slugTaken(slug string) bool {
	for _, path := range []string{s.openPath(slug), s.archivePath(slug)} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

func (s *FileStore) openPath(slug string) string {
	return filepath.Join(s.openDir, slug+".json")
}

func (s *FileStore) archivePath(slug string) string {
	return filepath.Join(s.archiveDir, slug+".json")
}

// writeRecord writes to a temp file and renames, so a crash mid-write never
// leaves a truncated record.
func writeRecord(path string, pos *models.Position) error {
	data, err := json.MarshalIndent(pos, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func readRecord(path string) (*models.Position, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- paths are store-derived
	if err != nil {
		return nil, err
	}
	var pos models.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &pos, nil
}
