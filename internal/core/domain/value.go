// Package domain defines the core domain models for Cardinal.
package domain

// Kind identifies the stored value type of a keyspace entry.
//
// Only KindString carries a decoded payload. The remaining kinds mirror
// the value-type tags of the snapshot format and exist so a snapshot
// containing them can be represented; their payloads are not decoded.
type Kind byte

const (
	KindString Kind = iota
	KindList
	KindSet
	KindSortedSet
	KindHash
	KindZipMap
	KindZipList
	KindIntSet
	KindSortedSetZipList
	KindHashMapZipList
	KindListQuickList
)

var kindNames = map[Kind]string{
	KindString:           "string",
	KindList:             "list",
	KindSet:              "set",
	KindSortedSet:        "sortedset",
	KindHash:             "hash",
	KindZipMap:           "zipmap",
	KindZipList:          "ziplist",
	KindIntSet:           "intset",
	KindSortedSetZipList: "sortedset-ziplist",
	KindHashMapZipList:   "hashmap-ziplist",
	KindListQuickList:    "list-quicklist",
}

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Value is a stored value: a kind tag plus, for strings, the payload.
type Value struct {
	Kind Kind
	Str  string
}

// String constructs a string value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// IsString reports whether the value is a decoded string.
func (v Value) IsString() bool {
	return v.Kind == KindString
}
