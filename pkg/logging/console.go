package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DebugEnv enables verbose event dumps and full eris traces.
const DebugEnv = "AUTOBASE_DEBUG"

var levelColors = map[string]string{
	"fatal": "[red]",
	"error": "[red]",
	"warn":  "[yellow]",
	"debug": "[blue]",
	"trace": "[blue]",
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, debugEnabled())
	}
}

func debugEnabled() bool {
	return os.Getenv(DebugEnv) != ""
}

// New builds the process logger. Console mode renders every event as one
// coloured line; JSON mode writes the raw events to out.
func New(out io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if jsonOutput {
		return zerolog.New(out).With().Timestamp().Logger().Level(level)
	}

	return zerolog.New(&consoleWriter{out: out}).Level(level)
}

type consoleWriter struct {
	out  io.Writer
	lock sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&evt); err != nil {
		return 0, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	line := render(evt)

	w.lock.Lock()
	defer w.lock.Unlock()
	if _, err := colorstring.Fprint(w.out, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// render turns a decoded event into colorstring markup.
func render(evt map[string]interface{}) string {
	level, _ := evt["level"].(string)
	color, ok := levelColors[level]
	if !ok {
		color = "[green]"
	}

	var line strings.Builder
	line.WriteString(color)
	if step, ok := evt["step"].(string); ok {
		line.WriteString(step + ": ")
	}
	if level == "error" {
		line.WriteString("Error: ")
	}

	line.WriteString(message(evt))
	if details, ok := evt["error"].(string); ok {
		line.WriteString("\n" + details)
	}

	if debugEnabled() {
		keys := make([]string, 0, len(evt))
		for key := range evt {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		line.WriteString("\n")
		for _, key := range keys {
			line.WriteString(fmt.Sprintf("  %s: %+v\n", key, evt[key]))
		}
	}

	line.WriteString("[reset]\n")
	return line.String()
}

// message is the event message with "$ " in front of commands and the path
// field shortened to a relative path.
func message(evt map[string]interface{}) string {
	msg, _ := evt["message"].(string)
	if cmd, _ := evt["command"].(bool); cmd {
		msg = "$ " + msg
	}

	path, ok := evt["path"].(string)
	if !ok || path == "" {
		return msg
	}

	relPath, err := filepath.Rel(".", path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return msg
	}
	return strings.ReplaceAll(msg, path, relPath)
}
