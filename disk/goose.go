package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/util"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk exposes a goose disk, whose blocks are gdisk.BlockSize bytes, as a
// disk of smaller blocks. Each device block holds perBlock volume blocks.
type gooseDisk struct {
	l         *sync.Mutex // serializes read-modify-write of device blocks
	d         gdisk.Disk
	blockSize uint64
	perBlock  uint64
}

func NewGooseDisk(d gdisk.Disk, blockSize uint64) (*gooseDisk, error) {
	if blockSize == 0 || blockSize > gdisk.BlockSize || gdisk.BlockSize%blockSize != 0 {
		return nil, fmt.Errorf("block size %d does not divide %d: %w",
			blockSize, gdisk.BlockSize, common.ErrOutOfRange)
	}
	return &gooseDisk{
		l:         new(sync.Mutex),
		d:         d,
		blockSize: blockSize,
		perBlock:  gdisk.BlockSize / blockSize,
	}, nil
}

func (g *gooseDisk) devAddr(a uint64) addr.Addr {
	return addr.MkAddr(a/g.perBlock, (a%g.perBlock)*g.blockSize)
}

func (g *gooseDisk) ReadTo(a uint64, b Block) error {
	if err := checkBuf(b, g.blockSize); err != nil {
		return err
	}
	n, _ := g.Size()
	if err := checkAddr(a, n); err != nil {
		return err
	}
	da := g.devAddr(a)
	g.l.Lock()
	blk := g.d.Read(da.Blkno)
	g.l.Unlock()
	sub := buf.MkBufLoad(da, g.blockSize, blk)
	copy(b, sub.Data)
	return nil
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	b := make(Block, g.blockSize)
	err := g.ReadTo(a, b)
	return b, err
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if err := checkBuf(v, g.blockSize); err != nil {
		return err
	}
	n, _ := g.Size()
	if err := checkAddr(a, n); err != nil {
		return err
	}
	da := g.devAddr(a)
	sub := buf.MkBuf(da, util.CloneByteSlice(v))
	g.l.Lock()
	defer g.l.Unlock()
	blk := g.d.Read(da.Blkno)
	sub.Install(blk)
	g.d.Write(da.Blkno, blk)
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size() * g.perBlock, nil
}

func (g *gooseDisk) BlockSize() uint64 {
	return g.blockSize
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	g.d.Close()
	return nil
}
