package output

import "github.com/ericogr/i2c-env-logger/pkg/poll"

// Output receives the header once and then one record per cycle. Record
// values are in header order.
type Output interface {
	EmitHeader(columns []string) error
	EmitRecord(rec poll.Record) error
	Close() error
}

// helper constructors are in subpackages
