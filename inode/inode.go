package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-sfs/common"
)

// Inode is the in-memory form of a 64-byte inode record:
//
//	active u32 | size u32 | direct [12]u32 | indirect u32 | pad
//
// all little-endian. A zero direct pointer is unused.
type Inode struct {
	Active   bool
	Size     uint64
	Direct   [common.NDirect]common.Bnum
	Indirect common.Bnum // reserved; no operation reads or sets it
}

func (ip *Inode) String() string {
	return fmt.Sprintf("{active %v size %d direct %v}", ip.Active, ip.Size, ip.Direct)
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	if ip.Active {
		enc.PutInt32(1)
	} else {
		enc.PutInt32(0)
	}
	enc.PutInt32(uint32(ip.Size))
	for _, bn := range ip.Direct {
		enc.PutInt32(uint32(bn))
	}
	enc.PutInt32(uint32(ip.Indirect))
	return enc.Finish()
}

func Decode(b []byte) *Inode {
	ip := &Inode{}
	dec := marshal.NewDec(b)
	ip.Active = dec.GetInt32() != 0
	ip.Size = uint64(dec.GetInt32())
	for i := range ip.Direct {
		ip.Direct[i] = common.Bnum(dec.GetInt32())
	}
	ip.Indirect = common.Bnum(dec.GetInt32())
	return ip
}

// BlockIndex is the direct-pointer slot holding byte off.
func BlockIndex(off uint64) uint64 {
	return off / common.BlockSize
}

// BlockOffset is the position of byte off inside its block.
func BlockOffset(off uint64) uint64 {
	return off % common.BlockSize
}

// Blocks returns the direct pointers that are in use.
func (ip *Inode) Blocks() []common.Bnum {
	var bns []common.Bnum
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	return bns
}
