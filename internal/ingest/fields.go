package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// fields is a decoded JSON object with lenient accessors. Every accessor
// treats a missing key and a JSON null the same way.
type fields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("not an object")
	}
	return f, nil
}

// lookup returns the first present, non-null value among the given names
func (f fields) lookup(names ...string) (json.RawMessage, string, bool) {
	for _, name := range names {
		v, ok := f[name]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		return v, name, true
	}
	return nil, "", false
}

func decodeAny(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// asString accepts strings only
func asString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string")
	}
	return s, nil
}

// asIdentifier accepts strings and integral numbers, returning the canonical
// text form so 9 and "9" address the same command.
func asIdentifier(raw json.RawMessage) (string, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return t.String(), nil
	}
	return "", fmt.Errorf("expected string or number")
}

func asBool(raw json.RawMessage) (bool, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("expected boolean")
		}
		return b, nil
	}
	return false, fmt.Errorf("expected boolean")
}

// asInt accepts integral numbers and numeric strings
func asInt(raw json.RawMessage) (int, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return 0, err
	}
	var f float64
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("expected integer")
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer")
	}
	// float64(math.MaxInt) rounds up to 2^63, which no int can hold
	if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int(f), nil
}

// asTime accepts RFC 3339 strings and epoch milliseconds
func asTime(raw json.RawMessage) (time.Time, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return time.Time{}, err
	}
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp")
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("expected epoch milliseconds")
		}
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("expected timestamp")
}
