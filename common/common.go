package common

// On-disk geometry. Block 0 is the superblock, blocks [1, 14) hold the inode
// table, blocks [14, 526) are data blocks and the last block is the
// free-space bitmap (one byte per data block).
const (
	BlockSize uint64 = 512
	NumBlocks uint64 = 527

	InodeStart   Bnum   = 1
	NInodeBlocks uint64 = 13
	DataStart    Bnum   = InodeStart + NInodeBlocks
	NDataBlocks  uint64 = 512
	BitmapBlock  Bnum   = DataStart + NDataBlocks

	INODESZ  uint64 = 64 // on-disk size
	INODEBLK uint64 = BlockSize / INODESZ
	NInodes  uint64 = NInodeBlocks * INODEBLK

	NDirect     uint64 = 12
	MaxFileSize uint64 = NDirect * BlockSize

	NameLen   uint64 = 28 // including the terminating NUL
	MaxName   uint64 = NameLen - 1
	DIRENTSZ  uint64 = NameLen + 4
	DIRENTBLK uint64 = BlockSize / DIRENTSZ

	NOpenFiles uint64 = 100
)

type Inum uint64
type Bnum = uint64

const (
	// NULLINUM is both the root directory and the "no inode" marker in
	// directory entries and open-file slots; a file can never own it.
	NULLINUM Inum = 0
	ROOTINUM Inum = NULLINUM
	NULLBNUM Bnum = 0
)
