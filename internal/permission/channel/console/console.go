// Package console implements a permission.Channel that prompts a human at
// a terminal, grounded on
// _examples/original_source/shared/plugins/clarification/channels.py's
// ConsoleChannel: ANSI-colored section headers when the output stream is
// a TTY, a line-oriented prompt loop, and a free-text answer normalized
// against a small set of recognized replies.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jaatoai/jaato/internal/permission"
)

// Channel prompts on an input/output stream pair, defaulting to stdin and
// stdout.
type Channel struct {
	in       *bufio.Reader
	out      io.Writer
	useColor bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithStreams overrides the default stdin/stdout pair, primarily for
// tests.
func WithStreams(in io.Reader, out io.Writer) Option {
	return func(c *Channel) {
		c.in = bufio.NewReader(in)
		c.out = out
	}
}

// New builds a console Channel reading from stdin and writing to stdout
// unless overridden with WithStreams.
func New(opts ...Option) *Channel {
	c := &Channel{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if f, ok := c.out.(*os.File); ok {
		c.useColor = isTerminal(f)
	}
	return c
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func (c *Channel) color(text, code string) string {
	if !c.useColor {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

// Ask implements permission.Channel. It blocks on a line read from the
// input stream; ctx cancellation is honored only up to that point (a
// blocking terminal read cannot itself be interrupted without closing the
// stream).
func (c *Channel) Ask(ctx context.Context, req permission.Request) (permission.Action, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.color(strings.Repeat("=", 60), "1"))
	fmt.Fprintln(c.out, c.color("  Permission requested", "36"))
	fmt.Fprintln(c.out, c.color(strings.Repeat("=", 60), "1"))
	if req.Context != "" {
		fmt.Fprintln(c.out, c.color(req.Context, "2"))
	}
	fmt.Fprintf(c.out, "  tool: %s\n", req.ToolName)
	fmt.Fprintf(c.out, "  args: %s\n", truncate(string(req.Args), 200))
	fmt.Fprintln(c.out, c.color("  allow this call? [y]es / [n]o / [a]lways / n[e]ver / once (default)", "33"))
	fmt.Fprint(c.out, "  > ")

	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("console: reading reply: %w", err)
	}
	return parseReply(line), nil
}

func parseReply(line string) permission.Action {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return permission.ActionYes
	case "n", "no":
		return permission.ActionNo
	case "a", "always":
		return permission.ActionAlways
	case "e", "never":
		return permission.ActionNever
	default:
		return permission.ActionOnce
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
