// Package fileutil holds small file helpers shared by the inbox importer.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

// UniquePath returns dir/base, or a timestamp-suffixed variant when that name
// is already taken.
func UniquePath(dir, base string) string {
	target := filepath.Join(dir, base)
	if _, err := os.Stat(target); err != nil {
		return target
	}
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), time.Now().UnixNano(), ext))
}

// MoveInto moves path into dir without overwriting an existing file and
// returns the final location. Moves across filesystems fall back to a
// verified copy followed by removal of the source.
func MoveInto(path, dir string) (string, error) {
	target := UniquePath(dir, filepath.Base(path))
	err := os.Rename(path, target)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", err
	}
	if err := CopyFileVerified(path, target); err != nil {
		return "", fmt.Errorf("copy %s: %w", filepath.Base(path), err)
	}
	if err := os.Remove(path); err != nil {
		return target, fmt.Errorf("remove source after copy: %w", err)
	}
	return target, nil
}
