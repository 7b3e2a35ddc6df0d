package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rhuss/identity/pkg/auth"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

var errPasswordMismatch = errors.New("passwords do not match")

// readPasswordInput reads a password from in when fromStdin is set, or
// prompts twice on the terminal otherwise.
func readPasswordInput(in io.Reader, out io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if !isTerminal() {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}

	first, err := promptPassword(out, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := promptPassword(out, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	return first, nil
}

func promptPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// parseClaims turns name=value flags into claims. Values that parse as JSON
// keep their JSON type; anything else is a string.
func parseClaims(flags []string) (auth.Claims, error) {
	var claims auth.Claims
	for _, f := range flags {
		name, raw, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return claims, fmt.Errorf("invalid claim %q, expected name=value", f)
		}

		var v any = raw
		if json.Valid([]byte(raw)) {
			dec := json.NewDecoder(strings.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&v); err != nil {
				return claims, fmt.Errorf("claim %q: %w", name, err)
			}
		}

		cv, err := auth.ClaimFromAny(v)
		if err != nil {
			return claims, fmt.Errorf("claim %q: %w", name, err)
		}
		claims.Add(name, cv)
	}
	return claims, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
