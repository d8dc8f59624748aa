package artifact_test

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/acqlab/launcher/api"
	"github.com/acqlab/launcher/internal/artifact"
)

func TestSaveRecordWritesJson(t *testing.T) {
	store, err := artifact.New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	record := api.RunRecord{
		RunUuid:    "0d9607ae-3f14-4ac9-a9f3-2b5ae27c42e1",
		Experiment: "two-photon-scan",
		Outcome:    api.OutcomeCompleted,
		PeakMemKiB: 120344,
		WallMillis: 93250,
	}

	path, err := store.SaveRecord(record)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got api.RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, record, got)
}

func TestArchiveLogRoundtrip(t *testing.T) {
	store, err := artifact.New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	const runUuid = "8c7f1be2-5f02-44a3-9a93-1f6df30c59f7"
	content := bytes.Repeat([]byte("frame 0001 acquired\n"), 1000)
	require.NoError(t, os.WriteFile(store.LogPath(runUuid), content, 0644))

	archivePath, err := store.ArchiveLog(runUuid)
	require.NoError(t, err)
	require.NotEmpty(t, archivePath)

	// Raw log is replaced by the archive.
	_, err = os.Stat(store.LogPath(runUuid))
	require.True(t, os.IsNotExist(err))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	got, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestArchiveLogMissingIsNotAnError(t *testing.T) {
	store, err := artifact.New(t.TempDir(), nil, nil)
	require.NoError(t, err)

	archivePath, err := store.ArchiveLog("no-such-run")
	require.NoError(t, err)
	require.Empty(t, archivePath)
}

func TestUploadFailureSurfaces(t *testing.T) {
	uploads := 0
	store, err := artifact.New(t.TempDir(), func(key string, path string) error {
		uploads++
		return os.ErrPermission
	}, nil)
	require.NoError(t, err)

	_, err = store.SaveRecord(api.RunRecord{RunUuid: "r"})
	require.Error(t, err)
	require.Equal(t, 1, uploads)
}
