// Package wire decodes the compact msgpack responses of the Boundlexx API.
//
// A compact response is a two element array [data, keyMap]. Every object in
// data uses small integers (or their decimal string form) as keys, which
// index into keyMap to recover the real field names.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypes lists the response media types that carry compact payloads.
var ContentTypes = []string{"application/msgpack", "application/x-msgpack"}

// ErrMalformedPayload is returned when the payload is not [data, keyMap].
var ErrMalformedPayload = errors.New("malformed compact payload")

// Decode unpacks a compact msgpack payload and expands its keys.
func Decode(payload []byte) (interface{}, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(decodeAnyKeyMap)

	root, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, fmt.Errorf("decoding msgpack: %w", err)
	}

	pair, ok := root.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("%w: root is %T", ErrMalformedPayload, root)
	}

	keyMap, err := keyNames(pair[1])
	if err != nil {
		return nil, err
	}
	return Expand(pair[0], keyMap), nil
}

// Expand replaces index keys with names from keyMap at every depth.
// Array positions are never renamed. Keys that are not a valid index
// are kept in their original form.
func Expand(data interface{}, keyMap []string) interface{} {
	switch v := data.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[expandKey(k, keyMap)] = Expand(val, keyMap)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[expandKey(k, keyMap)] = Expand(val, keyMap)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = Expand(val, keyMap)
		}
		return out
	default:
		return data
	}
}

func expandKey(k interface{}, keyMap []string) string {
	if idx, ok := keyIndex(k); ok && idx >= 0 && idx < len(keyMap) {
		return keyMap[idx]
	}
	return keyString(k)
}

func keyIndex(k interface{}) (int, bool) {
	switch v := k.(type) {
	case int64:
		return int(v), true
	case uint64:
		if v > uint64(^uint(0)>>1) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		i, err := strconv.Atoi(v)
		if err != nil || strconv.Itoa(i) != v {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func keyString(k interface{}) string {
	switch v := k.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func keyNames(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: key map is %T", ErrMalformedPayload, v)
	}
	names := make([]string, len(list))
	for i, item := range list {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: key map entry %d is %T", ErrMalformedPayload, i, item)
		}
		names[i] = name
	}
	return names, nil
}

// decodeAnyKeyMap keeps integer keys intact; the default map decoder
// only accepts string keys.
func decodeAnyKeyMap(d *msgpack.Decoder) (interface{}, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	m := make(map[interface{}]interface{}, n)
	for i := 0; i < n; i++ {
		k, err := d.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		switch kv := k.(type) {
		case []byte:
			k = string(kv)
		case []interface{}, map[interface{}]interface{}:
			k = fmt.Sprint(kv)
		}
		v, err := d.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
