// Package file holds small filesystem helpers shared by the build steps.
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ReadLines returns the file contents split into lines, without
// trailing newline artifacts.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSuffix(string(data), "\n")
	if content == "" {
		return []string{}, nil
	}

	return strings.Split(content, "\n"), nil
}

// WriteLines writes lines joined by newlines, with a trailing newline.
func WriteLines(lines []string, path string, perm os.FileMode) error {
	content := strings.Join(lines, "\n") + "\n"
	return Write(path, []byte(content), perm)
}

// Write creates the parent directory if needed and writes the file with
// the requested permissions. os.WriteFile alone does not chmod existing
// files, so permissions are enforced explicitly.
func Write(path string, content []byte, perm os.FileMode) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	err = os.WriteFile(path, content, perm)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return os.Chmod(path, perm)
}

// Copy copies src to dst, creating parent directories as needed.
func Copy(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	err = os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	err = out.Close()
	if err != nil {
		return err
	}

	return os.Chmod(dst, perm)
}
