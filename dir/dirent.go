package dir

import (
	"bytes"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-sfs/common"
)

// Entry maps a name to an inode. On disk it is a NUL-padded NameLen-byte
// name followed by a little-endian u32 inode number; inode 0 marks a free
// slot.
type Entry struct {
	Name string
	Inum common.Inum
}

func (e Entry) Free() bool {
	return e.Inum == common.NULLINUM
}

// CheckName rejects names that cannot be stored in an entry.
func CheckName(name string) error {
	if len(name) == 0 || uint64(len(name)) > common.MaxName {
		return fmt.Errorf("%q: %w", name, common.ErrNameTooLong)
	}
	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("%q contains NUL: %w", name, common.ErrNameTooLong)
	}
	return nil
}

func nameField(name string) []byte {
	b := make([]byte, common.NameLen)
	copy(b, name)
	return b
}

func EncodeEntry(e Entry) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutBytes(nameField(e.Name))
	enc.PutInt32(uint32(e.Inum))
	return enc.Finish()
}

func DecodeEntry(b []byte) Entry {
	dec := marshal.NewDec(b)
	name := dec.GetBytes(common.NameLen)
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	inum := common.Inum(dec.GetInt32())
	return Entry{Name: string(name), Inum: inum}
}
