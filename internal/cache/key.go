package cache

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Key identifies one check request: backend, language, disabled rules and
// the exact text sent.
type Key [32]byte

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// KeyFor hashes the parts of a request that influence the result.
func KeyFor(backendName, lang string, disabled []string, text string) Key {
	h := blake3.New()
	field := func(s string) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}
	field(backendName)
	field(lang)
	for _, r := range disabled {
		field(r)
	}
	field("\x00")
	field(text)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}
