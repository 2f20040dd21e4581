package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateKey joins a namespace and id as "prefix:id".
func GenerateKey(prefix string, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + ":" + id
}

// GenerateKeyWithParams appends each param to prefix, colon separated.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// HashKey returns a fixed-length digest usable as a key for arbitrary text.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
