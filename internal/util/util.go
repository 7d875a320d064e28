// Package util holds small shared helpers.
package util

import (
	"os"
	"strconv"
)

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Atoi parses a base-10 integer.
func Atoi(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
