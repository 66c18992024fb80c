package watcher

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// hashPrefix is how much of a file contributes to its hash
const hashPrefix = 1 << 20

// FileHash identifies file contents by the first megabyte and the size, so a
// renamed mix is still recognised.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New64()
	if _, err := io.CopyN(h, f, hashPrefix); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	_, _ = h.Write([]byte(":" + strconv.FormatInt(info.Size(), 10)))

	return fmt.Sprintf("%016x", h.Sum64()), nil
}
