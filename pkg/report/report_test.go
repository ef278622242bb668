package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.exe")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	artifact, err := DescribeArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), artifact.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", artifact.SHA256)

	_, err = DescribeArtifact(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWriteAndRead(t *testing.T) {
	r := New()
	require.NotEmpty(t, r.ID)
	r.Success = true
	r.Started = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Finished = r.Started.Add(90 * time.Second)
	r.Requirements = []string{"requests", "websockets"}
	r.Steps = []Step{
		{Name: "venv", Status: "done", Duration: time.Second},
		{Name: "verify", Status: "failed", Error: "artifact missing"},
	}

	path := filepath.Join(t.TempDir(), "report.yml")
	require.NoError(t, r.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "packager_status: 0")
	assert.NotContains(t, string(data), "artifact:")

	loaded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, r.ID, loaded.ID)
	assert.Equal(t, r.Steps, loaded.Steps)
	assert.True(t, loaded.Finished.Equal(r.Finished))
}

func TestUniqueIDs(t *testing.T) {
	assert.NotEqual(t, New().ID, New().ID)
}
