// buf manages sub-block disk objects (inodes, directory entries), packed into
// disk blocks.
package buf

import (
	"fmt"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/util"
)

// BlockDevice is the part of a disk a Buf needs to write itself through.
type BlockDevice interface {
	Read(a uint64) ([]byte, error)
	Write(a uint64, v []byte) error
}

// A Buf is a write to a disk object: sz bytes at Addr.
type Buf struct {
	Addr  addr.Addr
	Sz    uint64 // number of bytes
	Data  []byte
	dirty bool // has this object been written to?
}

func MkBuf(addr addr.Addr, data []byte) *Buf {
	b := &Buf{
		Addr:  addr,
		Sz:    uint64(len(data)),
		Data:  data,
		dirty: false,
	}
	return b
}

// Load the bytes of a disk block into a new buf, as specified by addr. The
// buf aliases blk.
func MkBufLoad(addr addr.Addr, sz uint64, blk []byte) *Buf {
	b := &Buf{
		Addr:  addr,
		Sz:    sz,
		Data:  blk[addr.Off : addr.Off+sz],
		dirty: false,
	}
	return b
}

// Install the bytes from buf into blk.
func (buf *Buf) Install(blk []byte) {
	util.DPrintf(20, "%v: install %d bytes\n", buf.Addr, buf.Sz)
	if buf.Addr.Off+buf.Sz > uint64(len(blk)) {
		panic(fmt.Errorf("install past end of block: %v+%d", buf.Addr, buf.Sz))
	}
	copy(blk[buf.Addr.Off:buf.Addr.Off+buf.Sz], buf.Data)
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect read-modify-writes the block holding buf. The caller must hold
// whatever lock protects that block.
func (buf *Buf) WriteDirect(d BlockDevice) error {
	buf.SetDirty()
	blk, err := d.Read(uint64(buf.Addr.Blkno))
	if err != nil {
		return err
	}
	buf.Install(blk)
	return d.Write(uint64(buf.Addr.Blkno), blk)
}
