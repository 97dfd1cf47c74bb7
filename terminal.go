package vlab

import (
	"os"

	"golang.org/x/term"
)

// terminal remembers the state of vlab's controlling terminal, so that
// it can be put back after a node left it in raw or otherwise odd mode.
type terminal struct {
	fd    int
	state *term.State
}

func saveTerminal() *terminal {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	state, err := term.GetState(fd)
	if err != nil {
		return nil
	}
	return &terminal{fd: fd, state: state}
}

func (t *terminal) restore() error {
	if t == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}
