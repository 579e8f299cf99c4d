package publisher

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"NewsDigest/internal/ports"
)

// Terminal echoes the digest with headings and links highlighted.
type Terminal struct {
	out     io.Writer
	heading *color.Color
	item    *color.Color
	link    *color.Color
}

var _ ports.Publisher = (*Terminal)(nil)

// NewTerminal writes to out, stdout when nil.
func NewTerminal(out io.Writer) *Terminal {
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{
		out:     out,
		heading: color.New(color.FgCyan, color.Bold),
		item:    color.New(color.FgYellow),
		link:    color.New(color.FgBlue),
	}
}

func (t *Terminal) Name() string { return "terminal" }

func (t *Terminal) Publish(_ context.Context, document, _ string) error {
	scanner := bufio.NewScanner(strings.NewReader(document))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		var err error
		switch {
		case strings.HasPrefix(line, "#"):
			_, err = t.heading.Fprintln(t.out, line)
		case startsWithRank(line):
			_, err = t.item.Fprintln(t.out, line)
		case strings.Contains(line, "http://") || strings.Contains(line, "https://"):
			_, err = t.link.Fprintln(t.out, line)
		default:
			_, err = io.WriteString(t.out, line+"\n")
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func startsWithRank(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(line[i:], ". ")
}
