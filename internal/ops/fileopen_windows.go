//go:build windows

package ops

import (
	"os"

	"github.com/siakad/templar/internal/errors"
)

// openFileNoFollow opens a generated document for writing.
// Windows has no O_NOFOLLOW; ValidatePath rejects symlinks before this runs.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens a template file for import.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, err
	}
	return f, nil
}
