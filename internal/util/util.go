package util

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

// ETag builds a strong validator for a file from its location, size and modification time.
func ETag(path string, size int64, modTime time.Time) string {
	key := fmt.Sprintf("%s:%d:%d", path, size, modTime.UnixNano())

	return `"` + GetIDFromString(&key) + `"`
}
