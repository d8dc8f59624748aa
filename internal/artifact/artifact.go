package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/acqlab/launcher/api"
)

// Store keeps run artifacts (the metadata record and the captured child
// output log) in a local directory and optionally mirrors them to an
// object store.
type Store struct {
	dir    string
	upload func(key string, path string) error
	log    *slog.Logger
}

// New creates a Store rooted at dir. upload may be nil for local-only
// operation.
func New(dir string, upload func(key string, path string) error, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, upload: upload, log: log}, nil
}

// LogPath returns where the raw output log for a run is captured.
func (s *Store) LogPath(runUuid string) string {
	return filepath.Join(s.dir, runUuid+".log")
}

// SaveRecord writes the run record as JSON and mirrors it. Returns the
// local path.
func (s *Store) SaveRecord(record api.RunRecord) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}

	path := filepath.Join(s.dir, record.RunUuid+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run record: %w", err)
	}

	if s.upload != nil {
		if err := s.upload(record.RunUuid+".json", path); err != nil {
			return path, fmt.Errorf("failed to upload run record: %w", err)
		}
	}
	return path, nil
}

// ArchiveLog zstd-compresses the captured output log, removes the raw file,
// and mirrors the archive. Returns the archive path. A missing log is not
// an error; runs without capture produce no archive.
func (s *Store) ArchiveLog(runUuid string) (string, error) {
	rawPath := s.LogPath(runUuid)
	in, err := os.Open(rawPath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open run log: %w", err)
	}
	defer in.Close()

	archivePath := rawPath + ".zst"
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to create log archive: %w", err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return "", fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("failed to compress run log: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finish log archive: %w", err)
	}

	if err := os.Remove(rawPath); err != nil {
		s.log.Warn("failed to remove raw run log", "path", rawPath, "error", err)
	}

	if s.upload != nil {
		if err := s.upload(runUuid+".log.zst", archivePath); err != nil {
			return archivePath, fmt.Errorf("failed to upload log archive: %w", err)
		}
	}
	return archivePath, nil
}
