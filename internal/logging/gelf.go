package logging

import (
	"fmt"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter dials a Graylog GELF UDP input. Pass the result to
// WithGelf; close it on shutdown.
func NewGelfWriter(address, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("creating gelf writer for %s: %w", address, err)
	}
	w.Facility = facility
	return w, nil
}
