package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// stdinIsTerminal reports whether an interactive prompt is possible.
func stdinIsTerminal() bool {
	return isTerminal(int(os.Stdin.Fd()))
}

// PromptPassword prints prompt to w and reads a secret from the terminal
// without echo.
func PromptPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(pw)
	return strings.TrimRight(string(pw), "\r\n"), nil
}
