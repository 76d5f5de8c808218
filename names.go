package reftable

import (
	"fmt"
	"strconv"
	"strings"
)

// formatTableName builds the opaque "<lo>-<hi>-<suffix>" table
// filename: zero-padded hexadecimal update-index bounds and a
// caller-supplied suffix that distinguishes otherwise-equal names.
func formatTableName(lo, hi uint64, suffix string) string {
	return fmt.Sprintf("%012x-%012x-%s", lo, hi, suffix)
}

// parseTableName recovers the update-index bounds from a table filename.
// It does not validate the suffix, which is opaque.
func parseTableName(name string) (lo, hi uint64, ok bool) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 {
		return 0, 0, false
	}
	lo, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err = strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
