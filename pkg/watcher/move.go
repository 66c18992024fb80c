package watcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// moveInto moves path into dir, adding a timestamp when the name is taken,
// and returns the new location.
func moveInto(dir, path string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create move-to directory: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(filepath.Base(path), ext)
		dest = filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext))
	}

	err := os.Rename(path, dest)
	if err == nil {
		return dest, nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return dest, copyThenDelete(path, dest)
	}
	return "", fmt.Errorf("failed to move file: %w", err)
}

// copyThenDelete moves a file across filesystems
func copyThenDelete(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to sync destination file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}

	_ = in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to delete original file after copy: %w", err)
	}
	return nil
}
