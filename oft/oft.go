// oft is the open file table: a fixed array of descriptors, each naming an
// inode and a byte cursor. It lives in memory only.
package oft

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-sfs/common"
)

// File is one descriptor slot. Inum 0 marks the slot as free, so the root
// directory can never be open through the table.
type File struct {
	Inum   common.Inum
	Cursor uint64
}

func (f File) Free() bool {
	return f.Inum == common.NULLINUM
}

type Table struct {
	mu    *sync.Mutex
	files []File
}

func MkTable() *Table {
	return &Table{
		mu:    new(sync.Mutex),
		files: make([]File, common.NOpenFiles),
	}
}

func (t *Table) slot(fd int) (*File, error) {
	if fd < 0 || fd >= len(t.files) {
		return nil, fmt.Errorf("fd %d out of range: %w", fd, common.ErrInvalidDescriptor)
	}
	f := &t.files[fd]
	if f.Free() {
		return nil, fmt.Errorf("fd %d not open: %w", fd, common.ErrInvalidDescriptor)
	}
	return f, nil
}

// Bind puts inum in the lowest free slot with the given cursor.
func (t *Table) Bind(inum common.Inum, cursor uint64) (int, error) {
	if inum == common.NULLINUM {
		return -1, fmt.Errorf("bind inode 0: %w", common.ErrOutOfRange)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd := range t.files {
		if t.files[fd].Free() {
			t.files[fd] = File{Inum: inum, Cursor: cursor}
			return fd, nil
		}
	}
	return -1, fmt.Errorf("open file table: %w", common.ErrFull)
}

func (t *Table) Get(fd int) (File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.slot(fd)
	if err != nil {
		return File{}, err
	}
	return *f, nil
}

func (t *Table) SetCursor(fd int, off uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.slot(fd)
	if err != nil {
		return err
	}
	f.Cursor = off
	return nil
}

func (t *Table) Unbind(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.slot(fd)
	if err != nil {
		return err
	}
	*f = File{}
	return nil
}

// UnbindInode frees every slot bound to inum and returns how many it freed.
func (t *Table) UnbindInode(inum common.Inum) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for fd := range t.files {
		if t.files[fd].Inum == inum {
			t.files[fd] = File{}
			n++
		}
	}
	return n
}

func (t *Table) NumOpen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, f := range t.files {
		if !f.Free() {
			n++
		}
	}
	return n
}
