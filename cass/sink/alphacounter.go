package sink

import (
	"fmt"
	"os"
	"path/filepath"
)

// alphaSuffix returns the n-th (0-based) two-letter lowercase
// subdirectory name the "distribute files across subdirectories"
// option fans successive batches of files into: aa, ab, ..., az,
// ba, ... — original_source's AlphaCounter helper, shared by
// hdf5_converter.cpp and cbf_output.cpp.
func alphaSuffix(n int) string {
	first := (n / 26) % 26
	second := n % 26
	return string([]byte{byte('a' + first), byte('a' + second)})
}

// subdirPath joins base's directory with the n-th alphabetic
// subdirectory, creating it if needed, and returns the directory the
// next batch of files should be written into.
func subdirPath(base string, n int) (string, error) {
	dir := filepath.Join(filepath.Dir(base), alphaSuffix(n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sink: create subdir %q: %w", dir, err)
	}
	return dir, nil
}
