package addr

import (
	"github.com/mit-pdos/go-sfs/common"
)

// Addr identifies the start of an on-disk object.
//
// Blkno is the block number containing the object, and Off is the byte offset
// of the object within the block. The size of the object is determined by the
// context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64
}

// Flatid maps an address to a single integer, unique across the volume.
func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*common.BlockSize + a.Off
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

func MkBlockAddr(blkno common.Bnum) Addr {
	return MkAddr(blkno, 0)
}

// MkRecordAddr is the address of the n-th fixed-size record of a table that
// starts at block start and packs perBlock records of sz bytes into a block.
func MkRecordAddr(start common.Bnum, n uint64, perBlock uint64, sz uint64) Addr {
	return MkAddr(start+common.Bnum(n/perBlock), (n%perBlock)*sz)
}
