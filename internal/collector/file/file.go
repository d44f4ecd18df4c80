// Package file implements the simplest transport collector: it opens a
// previously captured trace file and exposes it as an io.ReadCloser for the
// wire parser to consume.
package file

import (
	"fmt"
	"os"
)

// Open opens path for reading a captured trace. The caller is responsible
// for closing the returned file once the wire.Reader built over it is done.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file collector: opening %s: %w", path, err)
	}
	return f, nil
}
