package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ericogr/i2c-env-logger/pkg/output"
	"github.com/ericogr/i2c-env-logger/pkg/poll"
)

// ConsoleOutput writes to w, or to the current os.Stdout when w is nil.
type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) out() io.Writer {
	if c.w == nil {
		return os.Stdout
	}
	return c.w
}

func (c *ConsoleOutput) EmitHeader(columns []string) error {
	_, err := fmt.Fprintln(c.out(), strings.Join(columns, ","))
	return err
}

func (c *ConsoleOutput) EmitRecord(rec poll.Record) error {
	var b strings.Builder
	b.WriteString(rec.Timestamp.Format(time.RFC3339))
	for i, col := range rec.Columns {
		v := rec.Values[i]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, " %s=%s", col, v)
	}
	_, err := fmt.Fprintln(c.out(), b.String())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
