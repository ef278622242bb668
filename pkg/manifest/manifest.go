// Package manifest reads pip requirement files.
package manifest

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Requirement is a single dependency line.
type Requirement struct {
	// Name is the normalized project name; empty for direct references.
	Name   string
	Spec   string
	Source string
	Line   int
	Direct bool
	// Options are per-requirement pip options such as --hash.
	Options []string
}

// Manifest is the flattened content of a requirements file and its includes.
type Manifest struct {
	Path         string
	Requirements []Requirement
	// Options holds pip option lines (-e, --index-url, ...) verbatim.
	Options []string
}

var (
	nameRe       = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`)
	separatorRe  = regexp.MustCompile(`[-_.]+`)
	directRe     = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	reqOptionRe  = regexp.MustCompile(`(?:^|\s)--[A-Za-z]`)
	specifierRe  = regexp.MustCompile(`^(?:(?:===|==|!=|~=|<=|>=|<|>)\s*[^,;\s]+\s*,?\s*)*$`)
	includeFlags = []string{"-r", "--requirement", "-c", "--constraint"}
)

// NormalizeName applies the PEP 503 name normalization.
func NormalizeName(name string) string {
	return strings.ToLower(separatorRe.ReplaceAllString(name, "-"))
}

// Names returns the normalized names of all named requirements.
func (m *Manifest) Names() []string {
	result := make([]string, 0, len(m.Requirements))
	for _, req := range m.Requirements {
		if req.Name != "" {
			result = append(result, req.Name)
		}
	}
	return result
}

// Hashed reports whether every requirement is pinned with --hash, which puts
// pip into hash-checking mode.
func (m *Manifest) Hashed() bool {
	if len(m.Requirements) == 0 {
		return false
	}

	for _, req := range m.Requirements {
		hashed := false
		for _, opt := range req.Options {
			if strings.HasPrefix(opt, "--hash") {
				hashed = true
				break
			}
		}
		if !hashed {
			return false
		}
	}
	return true
}

// Load parses the requirements file at path including everything it pulls in
// through -r/-c.
func Load(path string) (*Manifest, error) {
	m := &Manifest{Path: path}
	err := m.load(path, map[string]bool{})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manifest) load(path string, seen map[string]bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", path)
	}

	if seen[absPath] {
		return eris.Errorf("%s includes itself", path)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	handle, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "Could not open manifest %s", path)
	}
	defer handle.Close()

	scanner := bufio.NewScanner(handle)
	lineNo := 0
	startLine := 0
	var pending strings.Builder
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if pending.Len() == 0 {
			startLine = lineNo
		}

		if strings.HasSuffix(text, `\`) {
			pending.WriteString(strings.TrimSuffix(text, `\`))
			continue
		}

		pending.WriteString(text)
		line := pending.String()
		pending.Reset()

		err = m.parseLine(path, startLine, line, seen)
		if err != nil {
			return err
		}
	}

	if err = scanner.Err(); err != nil {
		return eris.Wrapf(err, "Failed to read %s", path)
	}

	if pending.Len() > 0 {
		return m.parseLine(path, startLine, pending.String(), seen)
	}
	return nil
}

func stripComment(line string) string {
	if strings.HasPrefix(line, "#") {
		return ""
	}

	for _, sep := range []string{" #", "\t#"} {
		if pos := strings.Index(line, sep); pos > -1 {
			line = line[:pos]
		}
	}
	return strings.TrimSpace(line)
}

func (m *Manifest) parseLine(path string, lineNo int, line string, seen map[string]bool) error {
	line = stripComment(strings.TrimSpace(line))
	if line == "" {
		return nil
	}

	if strings.HasPrefix(line, "-") {
		for _, flag := range includeFlags {
			var target string
			switch {
			case strings.HasPrefix(line, flag+"="):
				target = line[len(flag)+1:]
			case strings.HasPrefix(line, flag+" "), strings.HasPrefix(line, flag+"\t"):
				target = line[len(flag)+1:]
			default:
				continue
			}

			target = strings.TrimSpace(target)
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}

			err := m.load(target, seen)
			if err != nil {
				return eris.Wrapf(err, "%s:%d: failed to include %s", path, lineNo, target)
			}
			return nil
		}

		m.Options = append(m.Options, line)
		return nil
	}

	req := Requirement{Source: path, Line: lineNo}
	if loc := reqOptionRe.FindStringIndex(line); loc != nil {
		options, err := splitOptions(line[loc[0]:])
		if err != nil {
			return eris.Wrapf(err, "%s:%d", path, lineNo)
		}
		req.Options = options
		line = strings.TrimSpace(line[:loc[0]])
	}
	req.Spec = line

	if directRe.MatchString(line) || strings.HasPrefix(line, ".") || strings.HasPrefix(line, "/") {
		req.Direct = true
		m.Requirements = append(m.Requirements, req)
		return nil
	}

	match := nameRe.FindStringSubmatch(line)
	if match == nil {
		return eris.Errorf("%s:%d: invalid requirement %q", path, lineNo, line)
	}

	rest := strings.TrimSpace(match[3])
	if pos := strings.Index(rest, ";"); pos > -1 {
		rest = strings.TrimSpace(rest[:pos])
	}

	if strings.HasPrefix(rest, "@") {
		req.Direct = true
	} else if !specifierRe.MatchString(rest) {
		return eris.Errorf("%s:%d: invalid version specifier %q", path, lineNo, rest)
	}

	req.Name = NormalizeName(match[1])
	m.Requirements = append(m.Requirements, req)
	return nil
}

// splitOptions groups "--flag value" and "--flag=value" tokens into one item
// per option.
func splitOptions(text string) ([]string, error) {
	var options []string
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "--") {
			options = append(options, field)
			continue
		}

		last := len(options) - 1
		if last < 0 || strings.Contains(options[last], "=") || strings.Contains(options[last], " ") {
			return nil, eris.Errorf("unexpected %q after requirement options", field)
		}
		options[last] += " " + field
	}

	return options, nil
}
