// Package utils provides small helpers shared across layers. They carry no
// domain knowledge.
package utils

import (
	"strconv"
	"strings"
)

// ParsePage parses a 1-based page number. Surrounding blanks are ignored;
// anything that is not a positive integer yields ok == false.
func ParsePage(s string) (page int, ok bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Window converts a 1-based page and a page size into an offset and limit.
// An offset that would overflow int is clamped so the query returns nothing.
func Window(page, size int) (offset, limit int) {
	if page < 1 || size < 1 {
		return 0, 0
	}
	const maxInt = int(^uint(0) >> 1)
	if page-1 > maxInt/size {
		return maxInt - size, size
	}
	return (page - 1) * size, size
}
