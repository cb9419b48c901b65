package storage

import (
	"github.com/optjournal/optjournal/internal/models"
)

// Interface defines the contract for position record persistence.
//
// Records live as one JSON document per position. Open positions sit in the
// open directory; closure relocates the document to the archive directory.
// The relocation is the commit point: the open-directory file is only
// removed after the archive write has succeeded, so a failure can leave a
// record in both locations but never in neither.
type Interface interface {
	// Create assigns the position a storage slug and writes it to the open
	// directory. The slug is <ticker>_<openedDate>, with a numeric suffix
	// when a same-ticker same-day record already exists.
	Create(pos *models.Position) error

	// Save rewrites an existing open position document.
	Save(pos *models.Position) error

	// Archive writes the position to the archive directory and then removes
	// it from the open directory.
	Archive(pos *models.Position) error

	// Get returns the position with the given slug, checking the open
	// directory first and the archive second. Returns ErrNotFound when
	// neither has it.
	Get(slug string) (*models.Position, error)

	// ListOpen returns all open position records, sorted by slug.
	ListOpen() ([]*models.Position, error)

	// ListArchived returns all archived position records, sorted by slug.
	ListArchived() ([]*models.Position, error)
}

// Ensure FileStore implements Interface.
var _ Interface = (*FileStore)(nil)
