// Package canonical produces a byte-for-byte deterministic textual encoding
// of JSON-compatible values. Two logically equal values encode identically
// regardless of map insertion order or runtime, which makes the output safe
// to hash.
package canonical

import (
	"bytes"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Marshal encodes v into its canonical textual form.
//
// Rules:
//   - nil and unrepresentable values (funcs, channels, NaN, ±Inf) encode as "null"
//   - object keys are sorted in lexicographic code-point order
//   - output is compact: no whitespace
//
// Marshal is total: it never fails, falling back to "null" for anything
// outside the accepted value universe.
func Marshal(v any) string {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.String()
}

func encode(buf *bytes.Buffer, v any) {
	if v == nil {
		buf.WriteString("null")
		return
	}

	switch x := v.(type) {
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return
	case string:
		encodeString(buf, x)
		return
	case float64:
		encodeFloat(buf, x)
		return
	case float32:
		encodeFloat(buf, float64(x))
		return
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
		return
	case int8, int16, int32, int64:
		buf.WriteString(strconv.FormatInt(reflect.ValueOf(x).Int(), 10))
		return
	case uint, uint8, uint16, uint32, uint64, uintptr:
		buf.WriteString(strconv.FormatUint(reflect.ValueOf(x).Uint(), 10))
		return
	case []any:
		encodeArray(buf, x)
		return
	case map[string]any:
		encodeObject(buf, x)
		return
	}

	// Anything else goes through reflection: typed slices, typed maps with
	// string keys, pointers. Unrepresentable kinds collapse to null.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return
		}
		encode(buf, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			encode(buf, rv.Index(i).Interface())
		}
		buf.WriteByte(']')
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			buf.WriteString("null")
			return
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		encodeObject(buf, m)
	case reflect.Bool:
		encode(buf, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		encodeFloat(buf, rv.Float())
	case reflect.String:
		encodeString(buf, rv.String())
	default:
		buf.WriteString("null")
	}
}

func encodeArray(buf *bytes.Buffer, arr []any) {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		encode(buf, elem)
	}
	buf.WriteByte(']')
}

func encodeObject(buf *bytes.Buffer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	first := true
	for _, k := range keys {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		encodeString(buf, k)
		buf.WriteByte(':')
		encode(buf, m[k])
	}
	buf.WriteByte('}')
}

// encodeFloat writes a finite float in standard JSON number form. NaN and
// infinities have no JSON form and encode as null.
func encodeFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return
	}
	abs := math.Abs(f)
	fmtByte := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		fmtByte = 'e'
	}
	buf.WriteString(strconv.FormatFloat(f, fmtByte, -1, 64))
}

const hexDigits = "0123456789abcdef"

// encodeString writes s as a JSON string: quotes and backslashes escaped,
// control characters as short escapes or \u00xx.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0xf])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
