package dfir

import (
	"encoding/binary"

	"github.com/minio/highwayhash"
)

// hashKey is a fixed 32-byte key shared by every Field hash computation.
// Field identity is defined entirely by hash (spec: "Equality and ordering
// are by hash"), so the key only needs to be stable for a single process
// run, not cryptographically secret.
var hashKey = []byte("DFIRFIELDHASHKEY0123456789ABCDEF")

// Field is a triple (declaringType?, fieldType, hash, name?). Two fields
// compare equal, and sort against each other, solely by Hash - never by
// Name, DeclaringType or FieldType, matching the points-to graph's
// requirement that field edges with the same Hash be treated as the same
// slot regardless of how they were spelled.
type Field struct {
	DeclaringType string `yaml:"declaringType,omitempty"` // empty for the two process-wide sentinels
	FieldType     string `yaml:"fieldType,omitempty"`
	Name          string `yaml:"name,omitempty"` // empty for unnamed/sentinel fields
	hash          uint64
	hashed        bool
}

// NewField interns a field by computing its hash from the declaring type,
// field type and name. Two Field values built from the same three strings
// always hash equal.
func NewField(declaringType, fieldType, name string) Field {
	f := Field{DeclaringType: declaringType, FieldType: fieldType, Name: name}
	f.hash = computeFieldHash(declaringType, fieldType, name)
	f.hashed = true
	return f
}

func computeFieldHash(declaringType, fieldType, name string) uint64 {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		// the key is a fixed 32 bytes, constructed above; New64 can only
		// fail on key length, so this is unreachable outside test code that
		// corrupts hashKey.
		panic(err)
	}
	writeLenPrefixed(h, declaringType)
	writeLenPrefixed(h, fieldType)
	writeLenPrefixed(h, name)
	return h.Sum64()
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	_, _ = h.Write(lenBuf[:])
	_, _ = h.Write([]byte(s))
}

// Hash returns the field's hash, the sole basis of its identity and
// ordering.
func (f Field) Hash() uint64 {
	if !f.hashed {
		return computeFieldHash(f.DeclaringType, f.FieldType, f.Name)
	}
	return f.hash
}

// Equal reports whether two fields denote the same slot.
func (f Field) Equal(other Field) bool { return f.Hash() == other.Hash() }

// Less orders fields by hash, used when sorting compressed-summary paths.
func (f Field) Less(other Field) bool { return f.Hash() < other.Hash() }

// INTESTINES is the sentinel field standing in for every array element:
// all array indices are indistinguishable to the analysis.
var INTESTINES = NewField("", "", "<intestines>")

// RETURN_VALUE synthesizes `return x` as `ret.RETURN_VALUE = x`, unifying
// return handling with field-write handling.
var RETURN_VALUE = NewField("", "", "<return-value>")
