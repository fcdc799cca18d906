package inode

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/super"
)

// Partitions:
//	-> Get/Put
//		-> first, middle, last inode; out of range
//		-> neighbours in the same block unaffected
//	-> Alloc
//		-> 1 alloc, many allocs, table exhausted
//		-> inode 0 never allocated

func mkTestTable(t *testing.T, d disk.Disk) *Table {
	tbl := MkTable(d, super.MkFsSuper(), lockmap.MkLockMap())
	require.NoError(t, tbl.Init())
	return tbl
}

func newDisk() disk.Disk {
	return disk.NewMemDisk(common.BlockSize, common.NumBlocks)
}

func TestEncodeDecode(t *testing.T) {
	ip := &Inode{Active: true, Size: 700, Indirect: 0}
	ip.Direct[0] = 14
	ip.Direct[1] = 20
	b := ip.Encode()
	assert.Equal(t, int(common.INODESZ), len(b))
	assert.Equal(t, byte(1), b[0], "active flag leads the record")
	if diff := cmp.Diff(ip, Decode(b)); diff != "" {
		t.Errorf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestBlockIndex(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(0), BlockIndex(0))
	assert.Equal(uint64(0), BlockIndex(511))
	assert.Equal(uint64(1), BlockIndex(512))
	assert.Equal(uint64(11), BlockOffset(523))
}

func TestGetPut(t *testing.T) {
	tbl := mkTestTable(t, newDisk())
	for _, inum := range []common.Inum{0, 9, 103} {
		ip := &Inode{Active: true, Size: uint64(inum) + 1}
		ip.Direct[3] = common.Bnum(inum) + 14
		require.NoError(t, tbl.Put(inum, ip))
		got, err := tbl.Get(inum)
		require.NoError(t, err)
		if diff := cmp.Diff(ip, got); diff != "" {
			t.Errorf("inode %d (-want +got):\n%s", inum, diff)
		}
	}
	// 8 shares a block with 9
	got, err := tbl.Get(8)
	require.NoError(t, err)
	assert.Equal(t, &Inode{}, got, "neighbour in same block untouched")
}

func TestOutOfRange(t *testing.T) {
	tbl := mkTestTable(t, newDisk())
	_, err := tbl.Get(common.Inum(common.NInodes))
	assert.Truef(t, errors.Is(err, common.ErrOutOfRange), "got %v", err)
	err = tbl.Put(common.Inum(common.NInodes)+5, &Inode{})
	assert.Truef(t, errors.Is(err, common.ErrOutOfRange), "got %v", err)
}

func TestAlloc(t *testing.T) {
	tbl := mkTestTable(t, newDisk())
	i1, err := tbl.Alloc()
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), i1, "inode 0 is reserved")
	i2, err := tbl.Alloc()
	require.NoError(t, err)
	assert.Equal(t, common.Inum(2), i2)

	ip, err := tbl.Get(i1)
	require.NoError(t, err)
	assert.Equal(t, &Inode{Active: true}, ip)

	// a stale inode is reset on reuse
	stale := &Inode{Active: false, Size: 33}
	stale.Direct[0] = 99
	require.NoError(t, tbl.Put(i1, stale))
	i3, err := tbl.Alloc()
	require.NoError(t, err)
	assert.Equal(t, i1, i3, "lowest inactive inode first")
	ip, err = tbl.Get(i3)
	require.NoError(t, err)
	assert.Equal(t, &Inode{Active: true}, ip)
}

func TestAllocExhaustion(t *testing.T) {
	tbl := mkTestTable(t, newDisk())
	for i := uint64(1); i < common.NInodes; i++ {
		inum, err := tbl.Alloc()
		require.NoError(t, err)
		require.Equal(t, common.Inum(i), inum)
	}
	_, err := tbl.Alloc()
	assert.Truef(t, errors.Is(err, common.ErrFull), "got %v", err)
}

func TestDeviceError(t *testing.T) {
	d := disk.NewFaultyDisk(newDisk())
	tbl := mkTestTable(t, d)
	d.FailReads(true)
	_, err := tbl.Get(1)
	assert.Truef(t, errors.Is(err, common.ErrDevice), "got %v", err)
	_, err = tbl.Alloc()
	assert.Truef(t, errors.Is(err, common.ErrDevice), "got %v", err)
}

func TestConcurrentPutSameBlock(t *testing.T) {
	tbl := mkTestTable(t, newDisk())
	var wg sync.WaitGroup
	for k := common.Inum(0); k < common.Inum(common.INODEBLK); k++ {
		wg.Add(1)
		go func(inum common.Inum) {
			defer wg.Done()
			for s := uint64(1); s <= 50; s++ {
				assert.NoError(t, tbl.Put(inum, &Inode{Active: true, Size: s}))
			}
		}(k)
	}
	wg.Wait()
	for k := common.Inum(0); k < common.Inum(common.INODEBLK); k++ {
		ip, err := tbl.Get(k)
		require.NoError(t, err)
		assert.Equal(t, uint64(50), ip.Size, "inode %d lost an update", k)
	}
}
