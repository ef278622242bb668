package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Requests":          "requests",
		"python_socketio":   "python-socketio",
		"zope.interface":    "zope-interface",
		"Some__Weird.-Name": "some-weird-name",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, NormalizeName(input), input)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "requirements.txt", `# agent runtime
requests>=2.31,<3
aiohttp[speedups] >= 3.9  # websocket transport
websockets==12.0 ; python_version >= "3.8"
cryptography
--index-url https://pypi.org/simple
steampy @ git+https://github.com/bukson/steampy.git
https://example.com/wheels/rsa-4.9-py3-none-any.whl
pyinstaller \
    ==6.3.0

`)

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"requests", "aiohttp", "websockets", "cryptography", "steampy", "pyinstaller"}, m.Names())
	assert.Equal(t, []string{"--index-url https://pypi.org/simple"}, m.Options)
	require.Len(t, m.Requirements, 7)

	assert.True(t, m.Requirements[4].Direct)
	assert.True(t, m.Requirements[5].Direct)
	assert.Empty(t, m.Requirements[5].Name)

	last := m.Requirements[6]
	assert.Equal(t, 9, last.Line)
	assert.Equal(t, path, last.Source)
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "req"), 0o755))
	writeFile(t, filepath.Join(dir, "req"), "base.txt", "requests\n")
	path := writeFile(t, dir, "requirements.txt", "-r req/base.txt\n--requirement=req/base.txt\ncustomtkinter\n")

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"requests", "requests", "customtkinter"}, m.Names())
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "-r b.txt\n")
	path := writeFile(t, dir, "b.txt", "-r a.txt\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"no-name.txt":   "==1.0\n",
		"bad-spec.txt":  "requests 2.0\n",
		"bad-chars.txt": "!requests\n",
		"stray-arg.txt": "requests --hash=sha256:abc oops\n",
	} {
		path := writeFile(t, dir, name, content)
		_, err := Load(path)
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLoadEmpty(t *testing.T) {
	path := writeFile(t, t.TempDir(), "requirements.txt", "\n# nothing yet\n")

	m, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, m.Requirements)
	assert.Empty(t, m.Names())
}

func TestLoadHashPinned(t *testing.T) {
	path := writeFile(t, t.TempDir(), "requirements.txt", `# generated by pip-compile --generate-hashes
requests==2.31.0 \
    --hash=sha256:942c5a758f98d790eaed1a29cb6eefc7ffb0d1cf7af05c3d2791656dbd6ad1e1 \
    --hash=sha256:58cd2187c01e70e6e26505bca751777aa9f2ee0b7f4300988b709f44e013003f
    # via -r requirements.in
websockets==12.0 ; python_version >= "3.8" --hash=sha256:abc
pywin32==306 --global-option build_ext --config-settings=--build-option=--plat
`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"requests", "websockets", "pywin32"}, m.Names())

	requests := m.Requirements[0]
	assert.Equal(t, "requests==2.31.0", requests.Spec)
	assert.Equal(t, 2, requests.Line)
	assert.Equal(t, []string{
		"--hash=sha256:942c5a758f98d790eaed1a29cb6eefc7ffb0d1cf7af05c3d2791656dbd6ad1e1",
		"--hash=sha256:58cd2187c01e70e6e26505bca751777aa9f2ee0b7f4300988b709f44e013003f",
	}, requests.Options)

	assert.Equal(t, []string{"--hash=sha256:abc"}, m.Requirements[1].Options)
	assert.Equal(t, `websockets==12.0 ; python_version >= "3.8"`, m.Requirements[1].Spec)
	assert.Equal(t, []string{"--global-option build_ext", "--config-settings=--build-option=--plat"}, m.Requirements[2].Options)
	assert.False(t, m.Hashed())

	m.Requirements = m.Requirements[:2]
	assert.True(t, m.Hashed())
}
