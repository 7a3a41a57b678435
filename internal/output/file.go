package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brentp/xopen"
)

// DefaultDir is where result files are created when no output is named.
const DefaultDir = "./res"

// CreateResultFile creates a fresh file named
// <method>_<YYYY-MM-DD.HHMMSS>_<random>.txt in dir, creating dir if needed.
func CreateResultFile(dir, method string, now time.Time) (*os.File, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	pattern := method + "_" + now.Format("2006-01-02.150405") + "_*.txt"
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create result file: %w", err)
	}
	return f, nil
}

// Create opens path for writing. A ".gz" suffix writes gzip.
func Create(path string) (io.WriteCloser, error) {
	w, err := xopen.Wopen(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return w, nil
}
