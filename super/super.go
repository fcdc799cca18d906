// super describes the layout of a volume and its on-disk superblock.
package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
)

const (
	SUPERBLOCK common.Bnum = 0
	MAGIC      uint64      = 0x5346535f564f4c31
)

// FsSuper is the content of block 0. The first four fields are the
// historical superblock; Magic and ID follow them in the same block.
type FsSuper struct {
	BlockSize    uint64
	NumBlocks    uint64
	NInodeBlocks uint64
	RootDir      common.Inum
	Magic        uint64
	ID           uuid.UUID
}

func MkFsSuper() *FsSuper {
	return &FsSuper{
		BlockSize:    common.BlockSize,
		NumBlocks:    common.NumBlocks,
		NInodeBlocks: common.NInodeBlocks,
		RootDir:      common.ROOTINUM,
		Magic:        MAGIC,
		ID:           uuid.New(),
	}
}

func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(fs.BlockSize)
	enc.PutInt32(uint32(fs.BlockSize))
	enc.PutInt32(uint32(fs.NumBlocks))
	enc.PutInt32(uint32(fs.NInodeBlocks))
	enc.PutInt32(uint32(fs.RootDir))
	enc.PutInt(fs.Magic)
	enc.PutBytes(fs.ID[:])
	return enc.Finish()
}

func Decode(blk disk.Block) *FsSuper {
	fs := &FsSuper{}
	dec := marshal.NewDec(blk)
	fs.BlockSize = uint64(dec.GetInt32())
	fs.NumBlocks = uint64(dec.GetInt32())
	fs.NInodeBlocks = uint64(dec.GetInt32())
	fs.RootDir = common.Inum(dec.GetInt32())
	fs.Magic = dec.GetInt()
	copy(fs.ID[:], dec.GetBytes(16))
	return fs
}

// Validate checks that the superblock describes the geometry this package
// was built for.
func (fs *FsSuper) Validate() error {
	if fs.Magic != MAGIC {
		return fmt.Errorf("bad magic %#x: %w", fs.Magic, common.ErrCorrupt)
	}
	if fs.BlockSize != common.BlockSize || fs.NumBlocks != common.NumBlocks ||
		fs.NInodeBlocks != common.NInodeBlocks {
		return fmt.Errorf("geometry %d x %d (%d inode blocks): %w",
			fs.NumBlocks, fs.BlockSize, fs.NInodeBlocks, common.ErrCorrupt)
	}
	if fs.RootDir != common.ROOTINUM {
		return fmt.Errorf("root directory inode %d: %w", fs.RootDir, common.ErrCorrupt)
	}
	return nil
}

func (fs *FsSuper) InodeStart() common.Bnum {
	return SUPERBLOCK + 1
}

func (fs *FsSuper) DataStart() common.Bnum {
	return fs.InodeStart() + common.Bnum(fs.NInodeBlocks)
}

func (fs *FsSuper) BitmapBlock() common.Bnum {
	return common.Bnum(fs.NumBlocks - 1)
}

// NData is the number of data blocks, one bitmap byte each.
func (fs *FsSuper) NData() uint64 {
	return uint64(fs.BitmapBlock() - fs.DataStart())
}

func (fs *FsSuper) NInode() common.Inum {
	return common.Inum(fs.NInodeBlocks * common.INODEBLK)
}

func (fs *FsSuper) Data2Bnum(i uint64) common.Bnum {
	return fs.DataStart() + common.Bnum(i)
}

// Bnum2Data maps an absolute block back to its data index; ok is false for
// blocks outside the data region.
func (fs *FsSuper) Bnum2Data(bn common.Bnum) (uint64, bool) {
	if bn < fs.DataStart() || bn >= fs.BitmapBlock() {
		return 0, false
	}
	return uint64(bn - fs.DataStart()), true
}

func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkRecordAddr(fs.InodeStart(), uint64(inum), common.INODEBLK, common.INODESZ)
}
