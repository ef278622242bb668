// Package pause implements the "press any key" prompt shown before the tool
// exits so double-clicked builds don't close their console window right away.
package pause

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompt is printed before waiting.
const Prompt = "Press any key to continue . . ."

type Pauser struct {
	In      *os.File
	Out     io.Writer
	Enabled bool
}

// New returns a pauser reading from stdin and prompting on stderr.
func New(enabled bool) *Pauser {
	return &Pauser{In: os.Stdin, Out: os.Stderr, Enabled: enabled}
}

// Active reports whether Wait would block.
func (p *Pauser) Active() bool {
	return p.Enabled && p.In != nil && term.IsTerminal(int(p.In.Fd()))
}

// Wait prints the prompt and blocks until a key is pressed. It returns
// immediately when disabled or when stdin isn't a terminal.
func (p *Pauser) Wait() {
	if !p.Active() {
		return
	}

	fmt.Fprint(p.Out, Prompt)
	defer fmt.Fprintln(p.Out)

	fd := int(p.In.Fd())
	state, err := term.MakeRaw(fd)
	if err == nil {
		defer term.Restore(fd, state)
	}

	buf := make([]byte, 1)
	_, _ = p.In.Read(buf)
}
