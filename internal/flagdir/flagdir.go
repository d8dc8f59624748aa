// Package flagdir implements the shared handshake channel as a directory of
// small TOML flag files. The launcher and the engine process both point at
// the same directory; each side writes its own files and polls the other's.
// File names and the schema version are the bit-exact contract surface
// between the two programs.
package flagdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SchemaVersion guards against silent protocol drift between launcher and
// engine builds.
const SchemaVersion = 1

const (
	resumeRequestedFile = "resume-requested.toml"
	resumeAckFile       = "resume-acknowledged.toml"
	engineAliveFile     = "engine-alive.toml"
)

// defaultStaleAfter is how old the engine heartbeat may be before the
// channel counts as unreachable.
const defaultStaleAfter = 1 * time.Minute

type flagDoc struct {
	Version int    `toml:"version"`
	Value   bool   `toml:"value"`
	SetAt   string `toml:"set_at"`
}

// FlagDir is the launcher-side view of a handshake directory. It also
// carries the engine-side operations so engine shims and tests can drive
// the other half of the protocol.
type FlagDir struct {
	dir        string
	staleAfter time.Duration
}

func New(dir string) (*FlagDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create handshake directory %s: %w", dir, err)
	}
	return &FlagDir{dir: dir, staleAfter: defaultStaleAfter}, nil
}

// SetStaleAfter overrides the heartbeat freshness window.
func (f *FlagDir) SetStaleAfter(d time.Duration) {
	f.staleAfter = d
}

// Dir returns the channel directory path.
func (f *FlagDir) Dir() string {
	return f.dir
}

// Connect reports whether the engine heartbeat file exists, carries the
// expected schema version, and is fresh.
func (f *FlagDir) Connect(ctx context.Context) error {
	doc, err := f.readFlag(engineAliveFile)
	if err != nil {
		return fmt.Errorf("engine heartbeat: %w", err)
	}
	setAt, err := time.Parse(time.RFC3339, doc.SetAt)
	if err != nil {
		return fmt.Errorf("engine heartbeat has malformed timestamp %q: %w", doc.SetAt, err)
	}
	if time.Since(setAt) > f.staleAfter {
		return fmt.Errorf("engine heartbeat is stale (set at %s)", doc.SetAt)
	}
	return nil
}

// RequestResume sets the resume-requested flag via an atomic rename so the
// engine never observes a half-written file.
func (f *FlagDir) RequestResume(ctx context.Context) error {
	return f.writeFlag(resumeRequestedFile, true)
}

// ResumeAcknowledged reads the resume-acknowledged flag. A missing file
// means not acknowledged, not an error.
func (f *FlagDir) ResumeAcknowledged(ctx context.Context) (bool, error) {
	doc, err := f.readFlag(resumeAckFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.Value, nil
}

// ClearResume removes both resume flags so the next cycle starts clean.
func (f *FlagDir) ClearResume(ctx context.Context) error {
	for _, name := range []string{resumeRequestedFile, resumeAckFile} {
		err := os.Remove(filepath.Join(f.dir, name))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear flag %s: %w", name, err)
		}
	}
	return nil
}

// MarkEngineAlive writes the engine heartbeat. Engine side of the protocol.
func (f *FlagDir) MarkEngineAlive(ctx context.Context) error {
	return f.writeFlag(engineAliveFile, true)
}

// ResumeRequested reads the resume-requested flag. Engine side.
func (f *FlagDir) ResumeRequested(ctx context.Context) (bool, error) {
	doc, err := f.readFlag(resumeRequestedFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return doc.Value, nil
}

// Acknowledge sets the resume-acknowledged flag. Engine side.
func (f *FlagDir) Acknowledge(ctx context.Context) error {
	return f.writeFlag(resumeAckFile, true)
}

func (f *FlagDir) writeFlag(name string, value bool) error {
	doc := flagDoc{
		Version: SchemaVersion,
		Value:   value,
		SetAt:   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal flag %s: %w", name, err)
	}

	tmpPath := filepath.Join(f.dir, name+".tmp")
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write flag %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, filepath.Join(f.dir, name)); err != nil {
		return fmt.Errorf("failed to publish flag %s: %w", name, err)
	}
	return nil
}

func (f *FlagDir) readFlag(name string) (*flagDoc, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return nil, err
	}
	var doc flagDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flag %s: %w", name, err)
	}
	if doc.Version != SchemaVersion {
		return nil, fmt.Errorf("flag %s has schema version %d, want %d", name, doc.Version, SchemaVersion)
	}
	return &doc, nil
}
