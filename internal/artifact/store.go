package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Store persists vouchers on the local filesystem. Paths handed to Save
// and Load are relative to the base directory; the directory is created
// once at construction.
type Store struct {
	baseDir string
	logger  *zerolog.Logger
}

func NewStore(baseDir string, logger *zerolog.Logger) (*Store, error) {
	if baseDir == "" {
		return nil, errors.New("artifact store: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: create base directory: %w", err)
	}
	return &Store{baseDir: baseDir, logger: logger}, nil
}

// Save writes the artifact bytes under the given relative path.
func (s *Store) Save(buf []byte, path string) error {
	full := filepath.Join(s.baseDir, filepath.Clean(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("artifact store: create directory: %w", err)
	}
	if err := os.WriteFile(full, buf, 0o644); err != nil {
		return fmt.Errorf("artifact store: write %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(buf)).Msg("artifact saved")
	return nil
}

// Load returns the stored artifact, or nil without error when the path
// does not exist or cannot be read. Callers use the nil result to fall
// back to regeneration.
func (s *Store) Load(path string) *Artifact {
	if path == "" {
		return nil
	}
	full := filepath.Join(s.baseDir, filepath.Clean(path))
	buf, err := os.ReadFile(full)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("artifact unreadable, will regenerate")
		}
		return nil
	}
	return &Artifact{Buffer: buf, Path: path}
}
