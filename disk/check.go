package disk

import (
	"fmt"

	"github.com/mit-pdos/go-sfs/common"
)

func checkAddr(a uint64, numBlocks uint64) error {
	if a >= numBlocks {
		return fmt.Errorf("block %d of %d: %w", a, numBlocks, common.ErrOutOfRange)
	}
	return nil
}

func checkBuf(b Block, blockSize uint64) error {
	if uint64(len(b)) != blockSize {
		return fmt.Errorf("buffer is not block-sized (%d bytes): %w",
			len(b), common.ErrOutOfRange)
	}
	return nil
}
