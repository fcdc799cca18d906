package sfs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/dir"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/inode"
	"github.com/mit-pdos/go-sfs/oft"
	"github.com/mit-pdos/go-sfs/util"
)

// OpenOrCreate returns a new descriptor for name, creating an empty file if
// the name is not in the directory. The cursor starts at the end of the
// file.
//
// Creation allocates the inode before inserting the directory entry. If the
// directory is full the inode stays allocated but unreachable and ErrFull is
// returned.
func (v *Volume) OpenOrCreate(name string) (int, error) {
	if err := dir.CheckName(name); err != nil {
		return -1, err
	}
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)

	inum, err := v.dir.Lookup(name)
	if errors.Is(err, common.ErrNotFound) {
		inum, err = v.inodes.Alloc()
		if err != nil {
			return -1, fmt.Errorf("create %q: %w", name, err)
		}
		if err := v.dir.Insert(name, inum); err != nil {
			return -1, fmt.Errorf("create %q (inode %d orphaned): %w", name, inum, err)
		}
		util.DPrintf(1, "OpenOrCreate: created %q as inode %d\n", name, inum)
	} else if err != nil {
		return -1, err
	}

	v.lockInode(inum)
	ip, err := v.inodes.Get(inum)
	v.unlockInode(inum)
	if err != nil {
		return -1, err
	}
	fd, err := v.files.Bind(inum, ip.Size)
	if err != nil {
		return -1, fmt.Errorf("open %q: %w", name, err)
	}
	return fd, nil
}

func (v *Volume) Close(fd int) error {
	return v.files.Unbind(fd)
}

// lockFile locks the inode open on fd and returns the descriptor as seen
// under that lock. Remove unbinds descriptors while holding the same lock, so
// the descriptor stays bound until the caller unlocks f.Inum.
func (v *Volume) lockFile(fd int) (oft.File, error) {
	f, err := v.files.Get(fd)
	if err != nil {
		return oft.File{}, err
	}
	v.lockInode(f.Inum)
	cur, err := v.files.Get(fd)
	if err == nil && cur.Inum != f.Inum {
		err = fmt.Errorf("fd %d rebound to inode %d: %w", fd, cur.Inum, common.ErrInvalidDescriptor)
	}
	if err != nil {
		v.unlockInode(f.Inum)
		return oft.File{}, err
	}
	return cur, nil
}

// Seek moves the cursor of fd to off. Any offset is accepted, including ones
// past the end of the file.
func (v *Volume) Seek(fd int, off uint64) error {
	return v.files.SetCursor(fd, off)
}

// Write copies p into the single block that holds the cursor and returns how
// many bytes fit before the end of that block; callers loop for more. The
// cursor does not move.
//
// Direct pointers up to and including the target block are allocated (and
// zeroed) if unset, so writing past the end of the file leaves a zero-filled
// gap. The file size grows to cover the bytes written.
func (v *Volume) Write(fd int, p []byte) (int, error) {
	f, err := v.lockFile(fd)
	if err != nil {
		return 0, err
	}
	defer v.unlockInode(f.Inum)
	if len(p) == 0 {
		return 0, nil
	}
	bi := inode.BlockIndex(f.Cursor)
	if bi >= common.NDirect {
		return 0, fmt.Errorf("write at %d past maximum file size %d: %w",
			f.Cursor, common.MaxFileSize, common.ErrFull)
	}
	off := inode.BlockOffset(f.Cursor)
	n := util.Min(uint64(len(p)), common.BlockSize-off)

	ip, err := v.inodes.Get(f.Inum)
	if err != nil {
		return 0, err
	}

	fresh, err := v.growTo(ip, bi)
	if err != nil {
		if len(fresh) == 0 {
			return 0, err
		}
		// keep what was allocated reachable
		if perr := v.inodes.Put(f.Inum, ip); perr != nil {
			util.DPrintf(1, "Write: inode %d lost %d fresh blocks: %v\n", f.Inum, len(fresh), perr)
			return 0, fmt.Errorf("saving inode %d after failed growth (%d blocks leaked: %v): %w",
				f.Inum, len(fresh), perr, err)
		}
		return 0, err
	}
	end := f.Cursor + n
	if end > ip.Size || len(fresh) > 0 {
		ip.Size = util.Max(ip.Size, end)
		if err := v.inodes.Put(f.Inum, ip); err != nil {
			return 0, err
		}
	}

	bn := ip.Direct[bi]
	var blk disk.Block
	if fresh[bn] {
		blk = make(disk.Block, common.BlockSize)
	} else {
		blk, err = v.d.Read(bn)
		if err != nil {
			return 0, err
		}
	}
	copy(blk[off:off+n], p[:n])
	if err := v.d.Write(bn, blk); err != nil {
		return 0, err
	}
	util.DPrintf(5, "Write: fd %d inode %d %d bytes at %d (block %d)\n",
		fd, f.Inum, n, f.Cursor, bn)
	return int(n), nil
}

// growTo allocates every unset direct pointer in [0, bi]. Gap blocks are
// zeroed on disk; block bi is left for the caller to fill. It returns the set
// of newly allocated blocks, including on error.
func (v *Volume) growTo(ip *inode.Inode, bi uint64) (map[common.Bnum]bool, error) {
	fresh := make(map[common.Bnum]bool)
	for i := uint64(0); i <= bi; i++ {
		if ip.Direct[i] != common.NULLBNUM {
			continue
		}
		n, err := v.alloc.AllocNum()
		if err != nil {
			return fresh, err
		}
		bn := v.super.Data2Bnum(n)
		ip.Direct[i] = bn
		fresh[bn] = true
		if i < bi {
			if err := v.d.Write(bn, make(disk.Block, common.BlockSize)); err != nil {
				return fresh, err
			}
		}
	}
	return fresh, nil
}

// Read returns up to n bytes starting at the cursor. It stops at the first
// zero byte, at the end of the cursor's block, or at the end of the file,
// whichever comes first. The cursor does not move.
func (v *Volume) Read(fd int, n int) ([]byte, error) {
	f, err := v.lockFile(fd)
	if err != nil {
		return nil, err
	}
	defer v.unlockInode(f.Inum)
	if n <= 0 {
		return []byte{}, nil
	}

	ip, err := v.inodes.Get(f.Inum)
	if err != nil {
		return nil, err
	}
	bi := inode.BlockIndex(f.Cursor)
	if f.Cursor >= ip.Size || bi >= common.NDirect || ip.Direct[bi] == common.NULLBNUM {
		return []byte{}, nil
	}
	off := inode.BlockOffset(f.Cursor)
	limit := util.Min(util.Min(uint64(n), common.BlockSize-off), ip.Size-f.Cursor)

	blk, err := v.d.Read(ip.Direct[bi])
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, limit)
	for _, c := range blk[off : off+limit] {
		if c == 0 {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// Remove deletes name from the directory and closes every descriptor open on
// its inode. The inode and its data blocks are not reclaimed.
func (v *Volume) Remove(name string) error {
	if err := dir.CheckName(name); err != nil {
		return err
	}
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)
	inum, err := v.dir.Remove(name)
	if err != nil {
		return err
	}
	v.lockInode(inum)
	n := v.files.UnbindInode(inum)
	v.unlockInode(inum)
	util.DPrintf(1, "Remove: %q inode %d, closed %d descriptors\n", name, inum, n)
	return nil
}

// Lookup returns the inode number bound to name.
func (v *Volume) Lookup(name string) (common.Inum, error) {
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)
	return v.dir.Lookup(name)
}

// FileSize reports the size in bytes of the file called name.
func (v *Volume) FileSize(name string) (uint64, error) {
	inum, err := v.Lookup(name)
	if err != nil {
		return 0, err
	}
	v.lockInode(inum)
	defer v.unlockInode(inum)
	ip, err := v.inodes.Get(inum)
	if err != nil {
		return 0, err
	}
	return ip.Size, nil
}

// List returns the file names in directory order.
func (v *Volume) List() ([]string, error) {
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)
	ents, err := v.dir.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name
	}
	return names, nil
}

type FileInfo struct {
	Inum   common.Inum
	Size   uint64
	Cursor uint64
	Blocks []common.Bnum
}

// Stat describes the file open on fd.
func (v *Volume) Stat(fd int) (FileInfo, error) {
	f, err := v.lockFile(fd)
	if err != nil {
		return FileInfo{}, err
	}
	defer v.unlockInode(f.Inum)
	ip, err := v.inodes.Get(f.Inum)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Inum: f.Inum, Size: ip.Size, Cursor: f.Cursor, Blocks: ip.Blocks()}, nil
}
