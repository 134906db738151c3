// Package entitymodel exposes metadata about the countries schema bundle.
package entitymodel

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"countries/internal/entitymodel/sqlbundle"
)

var version = sync.OnceValue(func() string {
	h := sha256.New()
	h.Write([]byte(sqlbundle.SQLite()))
	h.Write([]byte{0})
	h.Write([]byte(sqlbundle.Postgres()))
	return hex.EncodeToString(h.Sum(nil))[:12]
})

// Version fingerprints the embedded DDL of both dialects. It changes whenever
// either script changes.
func Version() string {
	return version()
}
