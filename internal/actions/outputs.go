// Package actions writes GitHub Actions step outputs.
package actions

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Outputs appends name=value lines to the file named by $GITHUB_OUTPUT. When that
// variable is unset it prints the older ::set-output workflow command to Fallback.
type Outputs struct {
	Path     string
	Fallback io.Writer
}

// FromEnv returns Outputs bound to $GITHUB_OUTPUT with w as the fallback.
func FromEnv(w io.Writer) *Outputs {
	return &Outputs{Path: os.Getenv("GITHUB_OUTPUT"), Fallback: w}
}

// Set records one output. Multi-line values use the heredoc delimiter form.
func (o *Outputs) Set(name, value string) error {
	if name == "" {
		return fmt.Errorf("output name required")
	}
	if o.Path == "" {
		if o.Fallback == nil {
			return nil
		}
		_, err := fmt.Fprintf(o.Fallback, "::set-output name=%s::%s\n", name, escapeCommand(value))
		return err
	}
	f, err := os.OpenFile(o.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	defer func() { _ = f.Close() }()
	line := name + "=" + value + "\n"
	if strings.ContainsAny(value, "\r\n") {
		delim := "releasekit_EOF"
		for strings.Contains(value, delim) {
			delim += "_"
		}
		line = fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delim, value, delim)
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write GITHUB_OUTPUT: %w", err)
	}
	return nil
}

// SetAll records outputs in the given order; pairs is name, value, name, value...
func (o *Outputs) SetAll(pairs ...string) error {
	if len(pairs)%2 != 0 {
		return fmt.Errorf("odd number of output arguments")
	}
	for i := 0; i < len(pairs); i += 2 {
		if err := o.Set(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func escapeCommand(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}
