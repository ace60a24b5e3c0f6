package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ericogr/i2c-env-logger/pkg/output"
	"github.com/ericogr/i2c-env-logger/pkg/poll"
)

const (
	DefaultPath = "report.csv"
	dateLayout  = "01/02/2006"
	timeLayout  = "15:04:05"
)

var prefixColumns = []string{"Date", "Time", "epoch"}

// CSVOutput appends records to a CSV file. The file is opened for every
// write so it can be rotated between cycles.
type CSVOutput struct {
	path     string
	location *time.Location
}

func NewCSV(path string) output.Output {
	if path == "" {
		path = DefaultPath
	}
	return &CSVOutput{path: path, location: time.Local}
}

// EmitHeader writes the header only when the file is new or empty.
func (c *CSVOutput) EmitHeader(columns []string) error {
	return c.append(func(w *csv.Writer, size int64) error {
		if size != 0 {
			return nil
		}
		return w.Write(append(append([]string(nil), prefixColumns...), columns...))
	})
}

func (c *CSVOutput) EmitRecord(rec poll.Record) error {
	ts := rec.Timestamp.In(c.location)
	row := make([]string, 0, len(prefixColumns)+len(rec.Values))
	row = append(row, ts.Format(dateLayout), ts.Format(timeLayout), strconv.FormatInt(ts.Unix(), 10))
	row = append(row, rec.Values...)
	return c.append(func(w *csv.Writer, _ int64) error {
		return w.Write(row)
	})
}

func (c *CSVOutput) append(write func(w *csv.Writer, size int64) error) error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report %s: %w", c.path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat report %s: %w", c.path, err)
	}
	w := csv.NewWriter(f)
	if err := write(w, st.Size()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report %s: %w", c.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report %s: %w", c.path, err)
	}
	return f.Close()
}

func (c *CSVOutput) Close() error { return nil }
