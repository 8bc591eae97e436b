package transfer

import (
	"fmt"
	"strconv"
	"strings"
)

const blockNameInfix = "_block_"

// BlockFileName returns the local file name of one block of a remote
// file.
func BlockFileName(name string, idx int64) string {
	return fmt.Sprintf("%s%s%d", name, blockNameInfix, idx)
}

// IsBlockFile reports whether name is a block file produced by
// BlockFileName.
func IsBlockFile(name string) bool {
	_, _, ok := ParseBlockFileName(name)
	return ok
}

// ParseBlockFileName splits a block file name into the original file
// name and the block index.
func ParseBlockFileName(name string) (string, int64, bool) {
	i := strings.LastIndex(name, blockNameInfix)
	if i < 0 {
		return "", 0, false
	}
	idx, err := strconv.ParseInt(name[i+len(blockNameInfix):], 10, 64)
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return name[:i], idx, true
}
