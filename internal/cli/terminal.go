// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// COLOR SUPPORT
// =============================================================================

var (
	colorsOnce    sync.Once
	colorsEnabled bool
)

// ColorsEnabled reports whether styled output should be used. It honours
// NO_COLOR and falls back to plain text when stdout is not a terminal.
func ColorsEnabled() bool {
	colorsOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return
		}
		if strings.EqualFold(os.Getenv("TERM"), "dumb") {
			return
		}
		colorsEnabled = IsStdoutTTY() && termenv.EnvColorProfile() != termenv.Ascii
	})
	return colorsEnabled
}

// =============================================================================
// PROMPTS
// =============================================================================

// ErrNoTTY is returned when a prompt is needed but stdin is not a terminal.
var ErrNoTTY = errors.New("no input on stdin and it is not a terminal")

// prompter reads secrets from a terminal without echo, or line by line from
// a pipe so PINs can be scripted.
type prompter struct {
	out io.Writer
	in  io.Reader
	br  *bufio.Reader
}

func newPrompter(out io.Writer, in io.Reader) *prompter {
	return &prompter{out: out, in: in}
}

// Secret prints prompt and reads one value.
func (p *prompter) Secret(prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	if p.br == nil {
		p.br = bufio.NewReader(p.in)
	}
	line, err := p.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		if line == "" {
			return "", ErrNoTTY
		}
	}
	return strings.TrimSpace(line), nil
}
