// dir implements the flat root directory: fixed-size entries packed into the
// data blocks of inode 0. The directory never grows past the blocks it was
// formatted with.
package dir

import (
	"bytes"
	"fmt"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/inode"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/util"
)

type Dir struct {
	d      disk.Disk
	inodes *inode.Table
	locks  *lockmap.LockMap
}

func MkDir(d disk.Disk, inodes *inode.Table, locks *lockmap.LockMap) *Dir {
	return &Dir{d: d, inodes: inodes, locks: locks}
}

func (dir *Dir) blocks() ([]common.Bnum, error) {
	ip, err := dir.inodes.Get(common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	return ip.Blocks(), nil
}

func entryAddr(bn common.Bnum, k uint64) addr.Addr {
	return addr.MkAddr(bn, k*common.DIRENTSZ)
}

// scan visits every entry in directory order with the entry's block locked.
// f marks b dirty to have the block written back, and returns whether to
// stop.
func (dir *Dir) scan(f func(b *buf.Buf, e Entry) bool) error {
	bns, err := dir.blocks()
	if err != nil {
		return err
	}
	for _, bn := range bns {
		stop, err := dir.scanBlock(bn, f)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

func (dir *Dir) scanBlock(bn common.Bnum, f func(b *buf.Buf, e Entry) bool) (bool, error) {
	id := addr.MkBlockAddr(bn).Flatid()
	dir.locks.Acquire(id)
	defer dir.locks.Release(id)
	blk, err := dir.d.Read(bn)
	if err != nil {
		return false, err
	}
	for k := uint64(0); k < common.DIRENTBLK; k++ {
		b := buf.MkBufLoad(entryAddr(bn, k), common.DIRENTSZ, blk)
		stop := f(b, DecodeEntry(b.Data))
		if b.IsDirty() {
			if err := dir.d.Write(bn, blk); err != nil {
				return true, err
			}
		}
		if stop {
			return true, nil
		}
	}
	return false, nil
}

// matches compares the stored name field byte for byte.
func matches(b *buf.Buf, name string) bool {
	return bytes.Equal(b.Data[:common.NameLen], nameField(name))
}

// Lookup returns the inode of the first entry named name.
func (dir *Dir) Lookup(name string) (common.Inum, error) {
	if err := CheckName(name); err != nil {
		return 0, err
	}
	inum := common.NULLINUM
	err := dir.scan(func(b *buf.Buf, e Entry) bool {
		if !e.Free() && matches(b, name) {
			inum = e.Inum
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if inum == common.NULLINUM {
		return 0, fmt.Errorf("%q: %w", name, common.ErrNotFound)
	}
	return inum, nil
}

// Insert stores name -> inum in the first free slot. It does not check for an
// existing entry with the same name.
func (dir *Dir) Insert(name string, inum common.Inum) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if inum == common.NULLINUM {
		return fmt.Errorf("insert %q -> inode 0: %w", name, common.ErrOutOfRange)
	}
	done := false
	err := dir.scan(func(b *buf.Buf, e Entry) bool {
		if !e.Free() {
			return false
		}
		copy(b.Data, EncodeEntry(Entry{Name: name, Inum: inum}))
		b.SetDirty()
		done = true
		util.DPrintf(1, "Insert: %q -> %d at %v\n", name, inum, b.Addr)
		return true
	})
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("directory has no free entry for %q: %w", name, common.ErrFull)
	}
	return nil
}

// Remove clears the first entry named name and returns the inode it named.
// The inode and its blocks are left as they are.
func (dir *Dir) Remove(name string) (common.Inum, error) {
	if err := CheckName(name); err != nil {
		return 0, err
	}
	inum := common.NULLINUM
	err := dir.scan(func(b *buf.Buf, e Entry) bool {
		if e.Free() || !matches(b, name) {
			return false
		}
		inum = e.Inum
		copy(b.Data, make([]byte, common.DIRENTSZ))
		b.SetDirty()
		util.DPrintf(1, "Remove: %q (inode %d) at %v\n", name, inum, b.Addr)
		return true
	})
	if err != nil {
		return 0, err
	}
	if inum == common.NULLINUM {
		return 0, fmt.Errorf("%q: %w", name, common.ErrNotFound)
	}
	return inum, nil
}

// List returns the live entries in directory order.
func (dir *Dir) List() ([]Entry, error) {
	var ents []Entry
	err := dir.scan(func(b *buf.Buf, e Entry) bool {
		if !e.Free() {
			ents = append(ents, e)
		}
		return false
	})
	return ents, err
}

// Capacity is the number of entries the directory can hold.
func (dir *Dir) Capacity() (uint64, error) {
	bns, err := dir.blocks()
	if err != nil {
		return 0, err
	}
	return uint64(len(bns)) * common.DIRENTBLK, nil
}
