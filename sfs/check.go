package sfs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/inode"
	"github.com/mit-pdos/go-sfs/util"
)

type Info struct {
	ID          string `yaml:"id"`
	BlockSize   uint64 `yaml:"blockSize"`
	NumBlocks   uint64 `yaml:"numBlocks"`
	DataBlocks  uint64 `yaml:"dataBlocks"`
	FreeBlocks  uint64 `yaml:"freeBlocks"`
	Inodes      uint64 `yaml:"inodes"`
	FreeInodes  uint64 `yaml:"freeInodes"`
	Files       uint64 `yaml:"files"`
	DirCapacity uint64 `yaml:"dirCapacity"`
	OpenFiles   int    `yaml:"openFiles"`
}

func (v *Volume) Info() (Info, error) {
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)
	info := Info{
		ID:         v.super.ID.String(),
		BlockSize:  v.super.BlockSize,
		NumBlocks:  v.super.NumBlocks,
		DataBlocks: v.super.NData(),
		Inodes:     uint64(v.super.NInode()),
		OpenFiles:  v.files.NumOpen(),
	}
	free, err := v.alloc.NumFree()
	if err != nil {
		return Info{}, err
	}
	info.FreeBlocks = free
	for inum := common.Inum(0); inum < v.super.NInode(); inum++ {
		ip, err := v.inodes.Get(inum)
		if err != nil {
			return Info{}, err
		}
		if !ip.Active {
			info.FreeInodes++
		}
	}
	ents, err := v.dir.List()
	if err != nil {
		return Info{}, err
	}
	info.Files = uint64(len(ents))
	info.DirCapacity, err = v.dir.Capacity()
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// Report is the result of a consistency check. Problems break an on-disk
// invariant; leaked blocks and orphan inodes are expected after Remove and
// after a failed create, and are listed for information only.
type Report struct {
	Problems     []string      `yaml:"problems"`
	LeakedBlocks []uint64      `yaml:"leakedBlocks"` // allocated data blocks no inode points to
	OrphanInodes []common.Inum `yaml:"orphanInodes"` // active inodes no directory entry names
}

func (r *Report) problem(format string, a ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, a...))
}

func (r *Report) Err() error {
	if len(r.Problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", strings.Join(r.Problems, "; "), common.ErrCorrupt)
}

// Check verifies that every direct pointer of an active inode is a data block
// marked allocated in the bitmap and owned by no other inode, that sizes fit
// the allocated blocks, and that directory entries name active inodes.
func (v *Volume) Check() (*Report, error) {
	v.lockInode(common.ROOTINUM)
	defer v.unlockInode(common.ROOTINUM)

	r := &Report{}
	owner := make(map[uint64]common.Inum)
	active := make(map[common.Inum]bool)
	for inum := common.Inum(0); inum < v.super.NInode(); inum++ {
		ip, err := v.inodes.Get(inum)
		if err != nil {
			return nil, err
		}
		if !ip.Active {
			continue
		}
		active[inum] = true
		if err := v.checkInode(r, inum, ip, owner); err != nil {
			return nil, err
		}
	}
	if !active[common.ROOTINUM] {
		r.problem("root directory inode is inactive")
	}

	for n := uint64(0); n < v.super.NData(); n++ {
		used, err := v.alloc.IsAllocated(n)
		if err != nil {
			return nil, err
		}
		if _, ok := owner[n]; used && !ok {
			r.LeakedBlocks = append(r.LeakedBlocks, n)
		}
	}

	ents, err := v.dir.List()
	if err != nil {
		return nil, err
	}
	named := make(map[common.Inum]bool)
	for _, e := range ents {
		named[e.Inum] = true
		if e.Inum >= v.super.NInode() {
			r.problem("entry %q names inode %d out of range", e.Name, e.Inum)
		} else if !active[e.Inum] {
			r.problem("entry %q names inactive inode %d", e.Name, e.Inum)
		}
	}
	for inum := common.Inum(1); inum < v.super.NInode(); inum++ {
		if active[inum] && !named[inum] {
			r.OrphanInodes = append(r.OrphanInodes, inum)
		}
	}
	return r, nil
}

func (v *Volume) checkInode(r *Report, inum common.Inum, ip *inode.Inode, owner map[uint64]common.Inum) error {
	last := -1
	for i, bn := range ip.Direct {
		if bn == common.NULLBNUM {
			continue
		}
		last = i
		n, ok := v.super.Bnum2Data(bn)
		if !ok {
			r.problem("inode %d pointer %d: block %d outside data region", inum, i, bn)
			continue
		}
		if other, dup := owner[n]; dup {
			r.problem("inode %d pointer %d: block %d already owned by inode %d", inum, i, bn, other)
			continue
		}
		owner[n] = inum
		used, err := v.alloc.IsAllocated(n)
		if err != nil {
			return err
		}
		if !used {
			r.problem("inode %d pointer %d: block %d is free in the bitmap", inum, i, bn)
		}
	}
	if util.RoundUp(ip.Size, common.BlockSize) > uint64(last+1) {
		r.problem("inode %d: size %d exceeds its %d blocks", inum, ip.Size, last+1)
	}
	if ip.Indirect != common.NULLBNUM {
		r.problem("inode %d: indirect pointer %d is set", inum, ip.Indirect)
	}
	return nil
}
