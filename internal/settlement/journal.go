package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const journalPerms = os.FileMode(0600)

// FileWithdrawer appends each withdrawal as one JSON line to a journal file
// that an external settlement agent tails. The file is opened for every
// write and synced before Withdraw returns.
type FileWithdrawer struct {
	Path string

	mtx sync.Mutex
}

// NewFileWithdrawer returns a withdrawer appending to path.
func NewFileWithdrawer(path string) (*FileWithdrawer, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileWithdrawer{Path: path}, nil
}

func (fw *FileWithdrawer) Withdraw(ctx context.Context, w Withdrawal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(w)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	fw.mtx.Lock()
	defer fw.mtx.Unlock()

	file, err := os.OpenFile(fw.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, journalPerms)
	if err != nil {
		return err
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("writing withdrawal journal: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing withdrawal journal: %w", err)
	}
	return file.Close()
}
