package models

import (
	"math"
	"strconv"
)

// Record is a single decoded API object (world, item, color, ...).
// Field names are the expanded names from the response key map.
type Record map[string]interface{}

// Int returns the named field as an int. Numbers arrive as int64/uint64
// from msgpack and float64 from JSON, so all of them are accepted.
func (r Record) Int(field string) (int, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	return toInt(v)
}

// String returns the named field as a string.
func (r Record) String(field string) (string, bool) {
	v, ok := r[field].(string)
	return v, ok
}

// IntID returns an id extractor reading an integer field.
func IntID(field string) func(Record) (int, bool) {
	return func(r Record) (int, bool) {
		return r.Int(field)
	}
}

// StringID returns an id extractor reading a non-empty string field.
func StringID(field string) func(Record) (string, bool) {
	return func(r Record) (string, bool) {
		s, ok := r.String(field)
		if !ok || s == "" {
			return "", false
		}
		return s, true
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}
