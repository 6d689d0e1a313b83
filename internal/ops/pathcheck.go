package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // for template import (read file)
	PathCheckWrite                      // for generated documents (write file)
)

// outputExts are the extensions a generated document may be written with.
var outputExts = map[string]bool{".docx": true, ".md": true, ".txt": true}

// ValidatePath performs path validation for template import and document output.
// It checks:
// 1. Path traversal (.. sequences)
// 2. Extension (an importable type for reads, .docx/.md/.txt for writes)
// 3. Directory restrictions (file must be DIRECTLY in the mode's default
//    directory or in allowed_paths - no subdirectories)
// 4. Symlink safety (parent dir must not be a symlink, file must not be a symlink)
//
// The "no subdirectories" rule closes the window between validation and open
// where an intermediate directory could be swapped for a symlink. The final
// component is opened with O_NOFOLLOW.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}

	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if err := checkExt(cleaned, mode); err != nil {
		return err
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	// Unsafe paths skip directory checks but not symlink checks.
	if cfg != nil && cfg.AllowUnsafePaths {
		if mode == PathCheckRead {
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				return errors.NewFileNotFound(path)
			}
		}
		return rejectSymlink(absPath)
	}

	allowedDirs, err := getAllowedDirs(cfg, mode)
	if err != nil {
		return err
	}

	parentDir := filepath.Dir(absPath)
	if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
		return errors.NewInvalidRequest(
			fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
				allowedDirs))
	}

	if info, err := os.Lstat(parentDir); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}

	return rejectSymlink(absPath)
}

func checkExt(path string, mode PathCheckMode) error {
	ext := strings.ToLower(filepath.Ext(path))
	if mode == PathCheckRead {
		if !tmpl.SupportedExt(path) {
			return errors.NewInvalidRequest(fmt.Sprintf("unsupported template extension %q", ext))
		}
		return nil
	}
	if !outputExts[ext] {
		return errors.NewInvalidRequest("output path must have .docx, .md or .txt extension")
	}
	return nil
}

func rejectSymlink(absPath string) error {
	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("path must not be a symlink")
		}
	}
	return nil
}

// getAllowedDirs returns the list of allowed directories (absolute, cleaned).
// If an allowed directory exists, it is resolved to catch symlinked allowed_paths entries.
func getAllowedDirs(cfg *config.Config, mode PathCheckMode) ([]string, error) {
	defaultDir, err := DefaultImportsDir()
	if mode == PathCheckWrite {
		defaultDir, err = DefaultOutputsDir()
	}
	if err != nil {
		return nil, err
	}
	dirs := []string{defaultDir}

	// Only absolute allowed paths count
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}

		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}

	return result, nil
}

// isDirectlyInAllowedDir checks if parentDir exactly matches one of the allowed directories.
func isDirectlyInAllowedDir(parentDir string, allowedDirs []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowedDirs {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// DefaultImportsDir returns the default import directory (~/.templar/imports).
func DefaultImportsDir() (string, error) {
	return templarSubdir("imports")
}

// DefaultOutputsDir returns the default output directory (~/.templar/outputs).
func DefaultOutputsDir() (string, error) {
	return templarSubdir("outputs")
}

func templarSubdir(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, ".templar", name), nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Forward slashes count on every platform
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
