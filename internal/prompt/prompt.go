// Package prompt holds the interactive ports the commands inject into the
// rotation and key management flows: yes/no confirmation and hidden secret
// entry. Keeping these behind interfaces keeps the flows themselves free of
// console I/O and testable with preset answers.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

// Confirmer asks the operator to approve a destructive action. Confirm
// returns false when the operator declines; declining is a valid outcome,
// not an error.
type Confirmer interface {
	Confirm(message string) (bool, error)
}

// PasswordReader collects a secret from the operator without echoing it.
type PasswordReader interface {
	ReadPassword(label string) (logging.Secret, error)
}

// Terminal is the interactive implementation used by the CLI. It reads
// confirmations from In (stdin in production) and writes prompts to Out
// (stderr, so prompts survive stdout redirection).
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminal returns a Terminal wired to the process's stdin and stderr.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stderr}
}

// Confirm prints the message and reads a y/yes answer. Anything else,
// including an empty line, counts as a decline.
func (t *Terminal) Confirm(message string) (bool, error) {
	fmt.Fprintf(t.Out, "%s (y/N): ", message)

	reader := bufio.NewReader(t.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// ReadPassword reads a secret from the controlling terminal with echo
// disabled. Refuses to run when stdin is not a terminal, so secrets are
// never read from pipes by accident.
func (t *Terminal) ReadPassword(label string) (logging.Secret, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", dserrors.UserError{
			Message:    "Cannot prompt for a secret: stdin is not a terminal",
			Suggestion: "Run interactively, or use the generated password instead of --import",
		}
	}

	fmt.Fprintf(t.Out, "%s: ", label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(t.Out)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	value := logging.Secret(raw)
	for i := range raw {
		raw[i] = 0
	}
	return value, nil
}

// Preset answers every prompt from fixed values. Used by tests and by the
// --yes / --non-interactive paths.
type Preset struct {
	Answer bool
	Secret logging.Secret
	Asked  []string
}

// Confirm records the message and returns the preset answer.
func (p *Preset) Confirm(message string) (bool, error) {
	p.Asked = append(p.Asked, message)
	return p.Answer, nil
}

// ReadPassword records the label and returns the preset secret.
func (p *Preset) ReadPassword(label string) (logging.Secret, error) {
	p.Asked = append(p.Asked, label)
	return p.Secret, nil
}

var (
	_ Confirmer      = (*Terminal)(nil)
	_ PasswordReader = (*Terminal)(nil)
	_ Confirmer      = (*Preset)(nil)
	_ PasswordReader = (*Preset)(nil)
)
