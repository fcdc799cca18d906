package dir

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/inode"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/super"
)

// mkTestDir builds a root inode owning nblocks zeroed directory blocks at the
// start of the data region.
func mkTestDir(t *testing.T, d disk.Disk, nblocks int) *Dir {
	sb := super.MkFsSuper()
	locks := lockmap.MkLockMap()
	tbl := inode.MkTable(d, sb, locks)
	require.NoError(t, tbl.Init())
	root := &inode.Inode{Active: true, Size: uint64(nblocks) * common.BlockSize}
	for i := 0; i < nblocks; i++ {
		root.Direct[i] = sb.Data2Bnum(uint64(i))
		require.NoError(t, d.Write(root.Direct[i], make([]byte, common.BlockSize)))
	}
	require.NoError(t, tbl.Put(common.ROOTINUM, root))
	return MkDir(d, tbl, locks)
}

func newDisk() disk.Disk {
	return disk.NewMemDisk(common.BlockSize, common.NumBlocks)
}

func isErr(t *testing.T, err error, target error) {
	t.Helper()
	assert.Truef(t, errors.Is(err, target), "expected %v, got %v", target, err)
}

func TestEntryEncoding(t *testing.T) {
	e := Entry{Name: "a.txt", Inum: 7}
	b := EncodeEntry(e)
	assert.Equal(t, int(common.DIRENTSZ), len(b))
	assert.Equal(t, []byte("a.txt\x00"), b[:6])
	assert.Equal(t, byte(7), b[common.NameLen])
	assert.Equal(t, e, DecodeEntry(b))
	assert.True(t, DecodeEntry(make([]byte, common.DIRENTSZ)).Free())
}

func TestCheckName(t *testing.T) {
	assert.NoError(t, CheckName(strings.Repeat("x", 27)))
	isErr(t, CheckName(strings.Repeat("x", 28)), common.ErrNameTooLong)
	isErr(t, CheckName(""), common.ErrNameTooLong)
	isErr(t, CheckName("a\x00b"), common.ErrNameTooLong)
}

func TestInsertLookup(t *testing.T) {
	dir := mkTestDir(t, newDisk(), 1)
	_, err := dir.Lookup("a.txt")
	isErr(t, err, common.ErrNotFound)

	require.NoError(t, dir.Insert("a.txt", 3))
	require.NoError(t, dir.Insert("b.txt", 4))
	inum, err := dir.Lookup("a.txt")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(3), inum)
	inum, err = dir.Lookup("b.txt")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(4), inum)

	_, err = dir.Lookup("a.tx")
	isErr(t, err, common.ErrNotFound)
}

func TestDuplicateFirstMatchWins(t *testing.T) {
	dir := mkTestDir(t, newDisk(), 1)
	require.NoError(t, dir.Insert("dup", 5))
	require.NoError(t, dir.Insert("dup", 6))
	inum, err := dir.Lookup("dup")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(5), inum)

	removed, err := dir.Remove("dup")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(5), removed)
	inum, err = dir.Lookup("dup")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(6), inum, "second entry surfaces")
}

func TestInsertZeroInode(t *testing.T) {
	dir := mkTestDir(t, newDisk(), 1)
	isErr(t, dir.Insert("x", common.NULLINUM), common.ErrOutOfRange)
}

func TestFull(t *testing.T) {
	for _, nblocks := range []int{1, 3} {
		t.Run(fmt.Sprintf("%d blocks", nblocks), func(t *testing.T) {
			dir := mkTestDir(t, newDisk(), nblocks)
			n, err := dir.Capacity()
			require.NoError(t, err)
			require.Equal(t, uint64(nblocks)*common.DIRENTBLK, n)
			for i := uint64(0); i < n; i++ {
				require.NoError(t, dir.Insert(fmt.Sprintf("f%d", i), common.Inum(i+1)))
			}
			isErr(t, dir.Insert("one-more", 99), common.ErrFull)

			ents, err := dir.List()
			require.NoError(t, err)
			require.Len(t, ents, int(n))
			assert.Equal(t, Entry{Name: "f0", Inum: 1}, ents[0], "existing entry intact")
			assert.Equal(t, Entry{Name: fmt.Sprintf("f%d", n-1), Inum: common.Inum(n)},
				ents[n-1])
		})
	}
}

func TestRemoveFreesSlot(t *testing.T) {
	d := newDisk()
	dir := mkTestDir(t, d, 1)
	for i := uint64(0); i < common.DIRENTBLK; i++ {
		require.NoError(t, dir.Insert(fmt.Sprintf("f%d", i), common.Inum(i+1)))
	}
	inum, err := dir.Remove("f3")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(4), inum)
	_, err = dir.Lookup("f3")
	isErr(t, err, common.ErrNotFound)
	_, err = dir.Remove("f3")
	isErr(t, err, common.ErrNotFound)

	// slot is zeroed on disk
	blk, err := d.Read(common.DataStart)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, common.DIRENTSZ), blk[3*common.DIRENTSZ:4*common.DIRENTSZ])

	require.NoError(t, dir.Insert("new", 42))
	ents, err := dir.List()
	require.NoError(t, err)
	assert.Equal(t, Entry{Name: "new", Inum: 42}, ents[3], "freed slot reused in place")
}

func TestLongestName(t *testing.T) {
	dir := mkTestDir(t, newDisk(), 1)
	name := strings.Repeat("n", 27)
	require.NoError(t, dir.Insert(name, 2))
	inum, err := dir.Lookup(name)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(2), inum)
}

func TestDeviceError(t *testing.T) {
	d := disk.NewFaultyDisk(newDisk())
	dir := mkTestDir(t, d, 1)
	d.FailWrites(true)
	isErr(t, dir.Insert("a", 1), common.ErrDevice)
	d.FailWrites(false)
	_, err := dir.Lookup("a")
	isErr(t, err, common.ErrNotFound)
}

func TestScanWritesOnlyDirtyBlocks(t *testing.T) {
	fd := disk.NewFaultyDisk(newDisk())
	dir := mkTestDir(t, fd, 2)
	base := fd.Writes()

	require.NoError(t, dir.Insert("a", 1))
	assert.Equal(t, base+1, fd.Writes(), "insert writes one block")
	_, err := dir.Lookup("a")
	require.NoError(t, err)
	_, err = dir.List()
	require.NoError(t, err)
	assert.Equal(t, base+1, fd.Writes(), "lookup and list write nothing")

	// an entry changed in memory but not marked dirty stays off the disk
	require.NoError(t, dir.scan(func(b *buf.Buf, e Entry) bool {
		copy(b.Data, EncodeEntry(Entry{Name: "ghost", Inum: 9}))
		return true
	}))
	assert.Equal(t, base+1, fd.Writes())
	inum, err := dir.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, common.Inum(1), inum)
}
