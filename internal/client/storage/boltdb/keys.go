package boltdb

import (
	"bytes"
	"encoding/binary"
)

// sep разделитель составных ключей.
// NUL в type/id отклоняется при валидации операций, иначе префиксы пересекаются.
const sep = 0x00

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// entityKey возвращает "type\x00id"
func entityKey(entityType, entityID string) []byte {
	key := make([]byte, 0, len(entityType)+len(entityID)+1)
	key = append(key, entityType...)
	key = append(key, sep)
	key = append(key, entityID...)
	return key
}

// entityPrefix возвращает "type\x00id\x00" для поиска по префиксу
func entityPrefix(entityType, entityID string) []byte {
	return append(entityKey(entityType, entityID), sep)
}

func splitEntityKey(key []byte) (string, string) {
	i := bytes.IndexByte(key, sep)
	if i < 0 {
		return string(key), ""
	}
	return string(key[:i]), string(key[i+1:])
}

func entityOpKey(entityType, entityID string, seq uint64) []byte {
	return append(entityPrefix(entityType, entityID), itob(seq)...)
}
