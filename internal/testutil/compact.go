// Package testutil provides a fake Boundlexx API for tests.
package testutil

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/meur/boundlexx/internal/models"
)

// Compact encodes v the way the API does for format=msgpack: object keys
// are replaced by indices into a key map and the payload is [data, keyMap].
// v may contain maps with string keys, Records, slices and scalars.
func Compact(v interface{}) ([]byte, error) {
	keys := map[string]int{}
	var keyMap []string
	data := compactValue(v, keys, &keyMap)
	return msgpack.Marshal([]interface{}{data, keyMap})
}

func compactValue(v interface{}, keys map[string]int, keyMap *[]string) interface{} {
	switch t := v.(type) {
	case models.Record:
		return compactMap(t, keys, keyMap)
	case map[string]interface{}:
		return compactMap(t, keys, keyMap)
	case []models.Record:
		out := make([]interface{}, len(t))
		for i, r := range t {
			out[i] = compactMap(r, keys, keyMap)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = compactValue(e, keys, keyMap)
		}
		return out
	default:
		return v
	}
}

func compactMap(m map[string]interface{}, keys map[string]int, keyMap *[]string) map[int]interface{} {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(map[int]interface{}, len(m))
	for _, k := range names {
		idx, ok := keys[k]
		if !ok {
			idx = len(*keyMap)
			keys[k] = idx
			*keyMap = append(*keyMap, k)
		}
		out[idx] = compactValue(m[k], keys, keyMap)
	}
	return out
}
