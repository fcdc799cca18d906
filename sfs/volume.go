// sfs is a simple single-volume file system: a flat directory of small files
// on a 527-block device, with an in-memory open file table.
//
// Every mutation is written to the disk before the call returns; there is no
// cache and no journal. A Volume is safe for concurrent use: block-level
// read-modify-writes hold per-block locks, file updates hold a per-inode
// lock, and namespace changes hold the root directory's inode lock.
package sfs

import (
	"fmt"

	"github.com/mit-pdos/go-sfs/alloc"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/dir"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/inode"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/oft"
	"github.com/mit-pdos/go-sfs/super"
	"github.com/mit-pdos/go-sfs/util"
)

type Options struct {
	// DirBlocks is the number of directory blocks allocated at format time
	// (16 entries each). Zero means 1; at most common.NDirect.
	DirBlocks int
	// Verify rejects a volume whose superblock does not describe this
	// geometry when mounting.
	Verify bool
}

func (o Options) dirBlocks() (uint64, error) {
	if o.DirBlocks == 0 {
		return 1, nil
	}
	if o.DirBlocks < 0 || uint64(o.DirBlocks) > common.NDirect {
		return 0, fmt.Errorf("%d directory blocks: %w", o.DirBlocks, common.ErrOutOfRange)
	}
	return uint64(o.DirBlocks), nil
}

type Volume struct {
	d      disk.Disk
	super  *super.FsSuper
	blocks *lockmap.LockMap // keyed by addr.Flatid of a block
	ilocks *lockmap.LockMap // keyed by inode number
	alloc  *alloc.Alloc
	inodes *inode.Table
	dir    *dir.Dir
	files  *oft.Table
}

func checkGeometry(d disk.Disk) error {
	n, err := d.Size()
	if err != nil {
		return err
	}
	if d.BlockSize() != common.BlockSize || n != common.NumBlocks {
		return fmt.Errorf("disk is %d x %d bytes, need %d x %d: %w",
			n, d.BlockSize(), common.NumBlocks, common.BlockSize, common.ErrOutOfRange)
	}
	return nil
}

func mkVolume(d disk.Disk, sb *super.FsSuper) *Volume {
	blocks := lockmap.MkLockMap()
	inodes := inode.MkTable(d, sb, blocks)
	return &Volume{
		d:      d,
		super:  sb,
		blocks: blocks,
		ilocks: lockmap.MkLockMap(),
		alloc:  alloc.MkAlloc(d, blocks, sb.BitmapBlock(), sb.NData()),
		inodes: inodes,
		dir:    dir.MkDir(d, inodes, blocks),
		files:  oft.MkTable(),
	}
}

// Format lays out an empty volume on d: superblock, cleared bitmap, inactive
// inode table, and a root directory owning opts.DirBlocks zeroed blocks.
func Format(d disk.Disk, opts Options) (*Volume, error) {
	if err := checkGeometry(d); err != nil {
		return nil, err
	}
	ndir, err := opts.dirBlocks()
	if err != nil {
		return nil, err
	}
	sb := super.MkFsSuper()
	v := mkVolume(d, sb)

	if err := d.Write(super.SUPERBLOCK, sb.Encode()); err != nil {
		return nil, err
	}
	if err := v.alloc.Init(); err != nil {
		return nil, err
	}
	if err := v.inodes.Init(); err != nil {
		return nil, err
	}

	root := &inode.Inode{Active: true, Size: ndir * common.BlockSize}
	for i := uint64(0); i < ndir; i++ {
		n, err := v.alloc.AllocNum()
		if err != nil {
			return nil, err
		}
		bn := sb.Data2Bnum(n)
		if err := d.Write(bn, make(disk.Block, common.BlockSize)); err != nil {
			return nil, err
		}
		root.Direct[i] = bn
	}
	if err := v.inodes.Put(common.ROOTINUM, root); err != nil {
		return nil, err
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Format: volume %v, %d directory blocks\n", sb.ID, ndir)
	return v, nil
}

// Mount uses the volume already on d as-is. Without opts.Verify nothing on
// disk is checked; a superblock that does not validate is ignored in favour
// of the built-in layout.
func Mount(d disk.Disk, opts Options) (*Volume, error) {
	if err := checkGeometry(d); err != nil {
		return nil, err
	}
	blk, err := d.Read(super.SUPERBLOCK)
	if err != nil {
		return nil, err
	}
	sb := super.Decode(blk)
	if err := sb.Validate(); err != nil {
		if opts.Verify {
			return nil, err
		}
		util.DPrintf(1, "Mount: ignoring superblock: %v\n", err)
		sb = super.MkFsSuper()
	}
	util.DPrintf(1, "Mount: volume %v\n", sb.ID)
	return mkVolume(d, sb), nil
}

// Open opens the disk image at path. With fresh set, the image is recreated
// and formatted; otherwise the existing image is mounted.
func Open(path string, fresh bool, opts Options) (*Volume, error) {
	if fresh {
		d, err := disk.Format(path, common.BlockSize, common.NumBlocks)
		if err != nil {
			return nil, err
		}
		v, err := Format(d, opts)
		if err != nil {
			d.Close()
			return nil, err
		}
		return v, nil
	}
	d, err := disk.NewFileDisk(path, common.BlockSize, common.NumBlocks)
	if err != nil {
		return nil, err
	}
	v, err := Mount(d, opts)
	if err != nil {
		d.Close()
		return nil, err
	}
	return v, nil
}

// Unmount flushes and releases the disk. Open descriptors are discarded.
func (v *Volume) Unmount() error {
	if err := v.d.Barrier(); err != nil {
		v.d.Close()
		return err
	}
	return v.d.Close()
}

func (v *Volume) Super() *super.FsSuper {
	return v.super
}

func (v *Volume) lockInode(inum common.Inum) {
	v.ilocks.Acquire(uint64(inum))
}

func (v *Volume) unlockInode(inum common.Inum) {
	v.ilocks.Release(uint64(inum))
}
