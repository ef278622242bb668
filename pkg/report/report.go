// Package report writes a machine-readable summary of a build.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type Step struct {
	Name     string        `yaml:"name"`
	Status   string        `yaml:"status"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

type Artifact struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// Executable is what the spec file says the packager produces.
type Executable struct {
	Name    string `yaml:"name"`
	OneFile bool   `yaml:"onefile"`
	Console bool   `yaml:"console"`
}

type Report struct {
	ID             string      `yaml:"id"`
	Started        time.Time   `yaml:"started"`
	Finished       time.Time   `yaml:"finished"`
	Success        bool        `yaml:"success"`
	Platform       string      `yaml:"platform"`
	Spec           string      `yaml:"spec"`
	Executable     *Executable `yaml:"executable,omitempty"`
	Requirements   []string    `yaml:"requirements,omitempty"`
	PipOptions     []string    `yaml:"pip_options,omitempty"`
	Hashed         bool        `yaml:"hashed"`
	PackagerStatus int         `yaml:"packager_status"`
	Artifact       *Artifact   `yaml:"artifact,omitempty"`
	Archive        string      `yaml:"archive,omitempty"`
	Steps          []Step      `yaml:"steps"`
}

// New returns an empty report with a fresh build ID.
func New() *Report {
	return &Report{ID: nanoid.New()}
}

// DescribeArtifact hashes the file at path.
func DescribeArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to open artifact %s", path)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to hash artifact %s", path)
	}

	return &Artifact{
		Path:   path,
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Write stores the report as YAML.
func (r *Report) Write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "Failed to encode build report")
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return eris.Wrapf(err, "Failed to write build report %s", path)
	}

	return nil
}

// Read loads a report written by Write.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to read build report %s", path)
	}

	var result Report
	err = yaml.Unmarshal(data, &result)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse build report %s", path)
	}
	return &result, nil
}
