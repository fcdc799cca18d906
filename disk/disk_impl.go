package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/util"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd        int
	blockSize uint64
	numBlocks uint64
}

func deviceErr(op string, a uint64, err error) error {
	return fmt.Errorf("%s block %d: %v: %w", op, a, err, common.ErrDevice)
}

// NewFileDisk opens an existing disk image at path holding numBlocks blocks
// of blockSize bytes. A missing image is an error; use Format to create one.
// A regular file of the wrong size is resized.
func NewFileDisk(path string, blockSize uint64, numBlocks uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", path, err, common.ErrDevice)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %v: %w", path, err, common.ErrDevice)
	}
	if (stat.Mode&unix.S_IFMT) == unix.S_IFREG && uint64(stat.Size) != numBlocks*blockSize {
		err = unix.Ftruncate(fd, int64(numBlocks*blockSize))
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("truncate %s: %v: %w", path, err, common.ErrDevice)
		}
	}
	return &fileDisk{fd: fd, blockSize: blockSize, numBlocks: numBlocks}, nil
}

// Format creates a fresh, zero-filled disk image at path, discarding any
// previous contents.
func Format(path string, blockSize uint64, numBlocks uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("format %s: %v: %w", path, err, common.ErrDevice)
	}
	if err := unix.Close(fd); err != nil {
		return nil, fmt.Errorf("format %s: %v: %w", path, err, common.ErrDevice)
	}
	util.DPrintf(1, "format: %s %d x %d bytes\n", path, numBlocks, blockSize)
	return NewFileDisk(path, blockSize, numBlocks)
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if err := checkBuf(buf, d.blockSize); err != nil {
		return err
	}
	if err := checkAddr(a, d.numBlocks); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(a*d.blockSize))
	if err != nil {
		return deviceErr("read", a, err)
	}
	if uint64(n) != d.blockSize {
		return deviceErr("read", a, fmt.Errorf("short read (%d bytes)", n))
	}
	util.DPrintf(30, "read: %v\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if err := checkBuf(v, d.blockSize); err != nil {
		return err
	}
	if err := checkAddr(a, d.numBlocks); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*d.blockSize))
	if err != nil {
		return deviceErr("write", a, err)
	}
	if uint64(n) != d.blockSize {
		return deviceErr("write", a, fmt.Errorf("short write (%d bytes)", n))
	}
	util.DPrintf(30, "write: %v\n", a)
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) BlockSize() uint64 {
	return d.blockSize
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	err := unix.Fsync(d.fd)
	if err != nil {
		return fmt.Errorf("fsync: %v: %w", err, common.ErrDevice)
	}
	return nil
}

func (d *fileDisk) Close() error {
	err := unix.Close(d.fd)
	if err != nil {
		return fmt.Errorf("close: %v: %w", err, common.ErrDevice)
	}
	return nil
}

/////////////////////////

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l         *sync.RWMutex
	blockSize uint64
	blocks    [][]byte
}

func NewMemDisk(blockSize uint64, numBlocks uint64) *memDisk {
	blocks := make([][]byte, numBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &memDisk{l: new(sync.RWMutex), blockSize: blockSize, blocks: blocks}
}

func (d *memDisk) ReadTo(a uint64, buf Block) error {
	if err := checkBuf(buf, d.blockSize); err != nil {
		return err
	}
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkAddr(a, uint64(len(d.blocks))); err != nil {
		return err
	}
	copy(buf, d.blocks[a])
	return nil
}

func (d *memDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.blockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *memDisk) Write(a uint64, v Block) error {
	if err := checkBuf(v, d.blockSize); err != nil {
		return err
	}
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkAddr(a, uint64(len(d.blocks))); err != nil {
		return err
	}
	copy(d.blocks[a], v)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return uint64(len(d.blocks)), nil
}

func (d *memDisk) BlockSize() uint64 {
	return d.blockSize
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
