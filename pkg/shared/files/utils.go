package files

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by FindFile when no root contains the file.
var ErrNotFound = errors.New("file not found")

// ExpandPath resolves paths that include a tilde (~) to the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}

// ValidatePath checks if the given path is a regular file.
func ValidatePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path stat error: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path %q is a directory, not a file", path)
	}
	if info.Mode()&os.ModeType != 0 {
		return fmt.Errorf("path %q is not a regular file", path)
	}
	return nil
}

// Exists reports whether path exists, regardless of its type.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveAndRecreate removes the directory if it exists and then creates it again.
func RemoveAndRecreate(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %q: %w", path, err)
	}
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	return nil
}

// CopyFile copies a file from srcFile to destFile, creating the destination folder.
func CopyFile(srcFile, destFile string) error {
	destDir := filepath.Dir(destFile)
	if err := CreateFolderIfNotExists(destDir); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", destDir, err)
	}

	in, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %q: %w", srcFile, err)
	}
	defer in.Close()

	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %q: %w", destFile, err)
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy data from %q to %q: %w", srcFile, destFile, err)
	}
	return nil
}

// AppendLines appends each line, newline terminated, to the file at path.
func AppendLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %q for append: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to append to %q: %w", path, err)
		}
	}
	return w.Flush()
}

// CreateFolderIfNotExists checks if a folder exists, and if not, creates it.
func CreateFolderIfNotExists(folder string) error {
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		if err := os.MkdirAll(folder, os.ModePerm); err != nil {
			return fmt.Errorf("unable to create folder %q: %w", folder, err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to check folder %q: %w", folder, err)
	}
	return nil
}

// WriteJsonFile writes raw JSON data to the specified file.
func WriteJsonFile(outputFile string, data []byte) error {
	if err := CreateFolderIfNotExists(filepath.Dir(outputFile)); err != nil {
		return err
	}
	file, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed creating file: %w", err)
	}
	defer file.Close()

	datawriter := bufio.NewWriter(file)
	defer datawriter.Flush()

	if _, err := datawriter.Write(data); err != nil {
		return fmt.Errorf("error writing data to file: %w", err)
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it to outputFile.
func WriteJSON(outputFile string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", outputFile, err)
	}
	return WriteJsonFile(outputFile, data)
}

// FindFile walks each root in order and returns the first file named name.
func FindFile(name string, roots ...string) (string, error) {
	for _, root := range roots {
		if root == "" || !Exists(root) {
			continue
		}
		var found string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable subtrees are skipped
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() && d.Name() == name {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to walk %q: %w", root, err)
		}
		if found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// EnsureWithinRoot resolves target and rejects it when it escapes root.
func EnsureWithinRoot(root, target string) (string, error) {
	if root == "" {
		return filepath.Clean(target), nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", target, err)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes root %q", absTarget, absRoot)
	}

	return absTarget, nil
}
