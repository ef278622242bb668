// Package specfile inspects PyInstaller .spec files to find out which
// executable a build is going to produce.
//
// Spec files are Python. The Starlark parser understands the subset that
// PyInstaller generates (assignments and calls with keyword arguments), which
// is all we need. Hand-written spec files using imports or other Python-only
// syntax fall back to a regular expression scan.
package specfile

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/rotisserie/eris"
	"go.starlark.net/syntax"
)

// DefaultName is used when the spec does not name its executable.
const DefaultName = "AutoBase Agent"

// Spec is the information extracted from a .spec file.
type Spec struct {
	Path string
	// Name is the EXE() name.
	Name string
	// CollectName is the COLLECT() name; empty for onefile builds.
	CollectName string
	// Console is false for windowed (GUI) builds.
	Console bool
	// Parsed is false when the regex fallback was used.
	Parsed bool
}

// OneFile reports whether the spec produces a single executable.
func (s *Spec) OneFile() bool {
	return s.CollectName == ""
}

// Artifact returns the path of the produced executable below distDir for the
// given target OS.
func (s *Spec) Artifact(distDir, goos string) string {
	name := s.Name
	if goos == "windows" && filepath.Ext(name) != ".exe" {
		name += ".exe"
	}

	if s.OneFile() {
		return filepath.Join(distDir, name)
	}
	return filepath.Join(distDir, s.CollectName, name)
}

// Load reads and inspects the spec file at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not read spec file %s", path)
	}

	return Parse(path, data)
}

// Parse inspects spec file content. path is only used for messages.
func Parse(path string, data []byte) (*Spec, error) {
	opts := &syntax.FileOptions{
		TopLevelControl: true,
		GlobalReassign:  true,
		While:           true,
		Set:             true,
	}

	file, err := opts.Parse(path, data, 0)
	if err != nil {
		return parseFallback(path, data)
	}

	spec := &Spec{Path: path, Console: true, Parsed: true}
	strVars := map[string]string{}
	foundExe := false

	stringValue := func(expr syntax.Expr) (string, bool) {
		switch value := expr.(type) {
		case *syntax.Literal:
			str, ok := value.Value.(string)
			return str, ok
		case *syntax.Ident:
			str, ok := strVars[value.Name]
			return str, ok
		}
		return "", false
	}

	// collect simple string assignments first so name=APP_NAME resolves
	for _, stmt := range file.Stmts {
		assign, ok := stmt.(*syntax.AssignStmt)
		if !ok || assign.Op != syntax.EQ {
			continue
		}

		ident, ok := assign.LHS.(*syntax.Ident)
		if !ok {
			continue
		}

		if value, ok := stringValue(assign.RHS); ok {
			strVars[ident.Name] = value
		}
	}

	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}

		fn, ok := call.Fn.(*syntax.Ident)
		if !ok {
			return true
		}

		switch fn.Name {
		case "EXE":
			foundExe = true
			for _, arg := range call.Args {
				key, value, ok := keywordArg(arg)
				if !ok {
					continue
				}

				switch key {
				case "name":
					if str, ok := stringValue(value); ok {
						spec.Name = str
					}
				case "console":
					if ident, ok := value.(*syntax.Ident); ok {
						spec.Console = ident.Name != "False"
					}
				}
			}
		case "COLLECT":
			spec.CollectName = DefaultName
			for _, arg := range call.Args {
				key, value, ok := keywordArg(arg)
				if ok && key == "name" {
					if str, ok := stringValue(value); ok {
						spec.CollectName = str
					}
				}
			}
		}

		return true
	})

	if !foundExe {
		return nil, eris.Errorf("%s does not contain an EXE() call", path)
	}

	if spec.Name == "" {
		spec.Name = DefaultName
	}
	return spec, nil
}

func keywordArg(expr syntax.Expr) (string, syntax.Expr, bool) {
	bin, ok := expr.(*syntax.BinaryExpr)
	if !ok || bin.Op != syntax.EQ {
		return "", nil, false
	}

	ident, ok := bin.X.(*syntax.Ident)
	if !ok {
		return "", nil, false
	}
	return ident.Name, bin.Y, true
}

var (
	exeRe     = regexp.MustCompile(`(?s)\bEXE\s*\((.*?)\)\s*(?:\n\S|$)`)
	collectRe = regexp.MustCompile(`(?s)\bCOLLECT\s*\((.*?)\)\s*(?:\n\S|$)`)
	nameRe    = regexp.MustCompile(`\bname\s*=\s*(?:'([^']*)'|"([^"]*)")`)
	consoleRe = regexp.MustCompile(`\bconsole\s*=\s*(True|False)`)
)

func parseFallback(path string, data []byte) (*Spec, error) {
	exe := exeRe.FindSubmatch(data)
	if exe == nil {
		return nil, eris.Errorf("%s does not contain an EXE() call", path)
	}

	spec := &Spec{Path: path, Name: DefaultName, Console: true}
	if name := nameRe.FindSubmatch(exe[1]); name != nil {
		spec.Name = string(name[1]) + string(name[2])
	}

	if console := consoleRe.FindSubmatch(exe[1]); console != nil {
		spec.Console = string(console[1]) == "True"
	}

	if collect := collectRe.FindSubmatch(data); collect != nil {
		spec.CollectName = DefaultName
		if name := nameRe.FindSubmatch(collect[1]); name != nil {
			spec.CollectName = string(name[1]) + string(name[2])
		}
	}

	return spec, nil
}
