package store

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Save modes for a run's database.
const (
	SaveNone    = ""
	SaveReplace = "replace"
	SaveArchive = "archive"
	SaveTrack   = "track"
)

// DefaultModule names the database file when no module name is configured.
const DefaultModule = "anaphora"

// ErrTrackUnsupported is returned for the track save mode. Archive mode
// keeps one timestamped database per run instead.
var ErrTrackUnsupported = errors.New("longitudinal tracking in a single database is not supported; use archive")

// ResolvePath maps a save mode to a database path:
//
//   - "" keeps the run in memory
//   - replace writes <module>.db, removing any previous file first
//   - archive writes <module>-<timestamp>.db
func ResolvePath(module, save string, now time.Time) (string, error) {
	if save == SaveNone {
		return MemoryPath, nil
	}
	if module == "" {
		module = DefaultModule
	}

	switch save {
	case SaveReplace:
		path := module + ".db"
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("replace %s: %w", p, err)
			}
		}
		return path, nil
	case SaveArchive:
		return fmt.Sprintf("%s-%s.db", module, now.UTC().Format("20060102T150405Z")), nil
	case SaveTrack:
		return "", ErrTrackUnsupported
	default:
		return "", fmt.Errorf("unknown save mode %q: must be replace, archive or track", save)
	}
}
