package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

// LockName builds a MySQL user-lock name for scope:key.
// GET_LOCK names are capped at 64 characters, so the key is hashed.
func LockName(scope, key string) string {
	sum := sha1.Sum([]byte(key))
	return scope + ":" + hex.EncodeToString(sum[:])
}
