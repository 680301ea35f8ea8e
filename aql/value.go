package aql

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dchest/siphash"
)

// Value is a single register value flowing through the pipeline.
// Like the document model it mirrors, values are plain Go types:
//   - nil (null)
//   - bool
//   - int64, int, float64 (numbers)
//   - string
//   - []Value (arrays)
//   - map[string]Value (objects)
type Value interface{}

// Type ranks follow AQL's cross-type ordering:
// null < bool < number < string < array < object.
const (
	typeNull = iota
	typeBool
	typeNumber
	typeString
	typeArray
	typeObject
)

func typeRank(v Value) int {
	switch v.(type) {
	case nil:
		return typeNull
	case bool:
		return typeBool
	case int, int64, float64, uint64:
		return typeNumber
	case string:
		return typeString
	case []Value, []interface{}:
		return typeArray
	case map[string]Value, map[string]interface{}:
		return typeObject
	}
	return typeString
}

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Values of different types are ordered by type rank. Numbers compare
// numerically regardless of their Go representation.
func CompareValues(left, right Value) int {
	lr, rr := typeRank(left), typeRank(right)
	if lr != rr {
		return compareInts(lr, rr)
	}

	switch lr {
	case typeNull:
		return 0
	case typeBool:
		lb, rb := left.(bool), right.(bool)
		if lb == rb {
			return 0
		}
		if !lb {
			return -1
		}
		return 1
	case typeNumber:
		lf, _ := ToNumber(left)
		rf, _ := ToNumber(right)
		return compareFloats(lf, rf)
	case typeString:
		return strings.Compare(stringValue(left), stringValue(right))
	case typeArray:
		la, ra := asArray(left), asArray(right)
		for i := 0; i < len(la) && i < len(ra); i++ {
			if c := CompareValues(la[i], ra[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(la), len(ra))
	case typeObject:
		lo, ro := asObject(left), asObject(right)
		keys := mergedKeys(lo, ro)
		for _, k := range keys {
			lv, lok := lo[k]
			rv, rok := ro[k]
			if lok != rok {
				if !lok {
					return -1
				}
				return 1
			}
			if c := CompareValues(lv, rv); c != 0 {
				return c
			}
		}
		return 0
	}
	return 0
}

// ValuesEqual checks if two values are equal under CompareValues.
func ValuesEqual(a, b Value) bool {
	return CompareValues(a, b) == 0
}

// Truthy converts a value to a boolean using AQL rules: null, false, 0 and
// the empty string are false; arrays and objects are always true.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}
	return true
}

// ToNumber converts a numeric value to float64. The second result is false
// for non-numeric values.
func ToNumber(v Value) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, false
		}
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, false
	}
	return 0, false
}

// Length returns the AQL LENGTH() of a value.
func Length(v Value) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return int64(len([]rune(t)))
	case []Value:
		return int64(len(t))
	case []interface{}:
		return int64(len(t))
	case map[string]Value:
		return int64(len(t))
	case map[string]interface{}:
		return int64(len(t))
	}
	f, _ := ToNumber(v)
	return int64(len(strconv.FormatFloat(f, 'f', -1, 64)))
}

// Fixed siphash keys; hashes only need to be stable within a process.
const (
	hashKey0 = 0x6a616e7573617161
	hashKey1 = 0x716c657865637574
)

// Hash returns a 64 bit siphash of the value's canonical encoding. Equal
// values (under ValuesEqual) hash equally, including numbers of different
// Go types.
func Hash(v Value) uint64 {
	buf := appendCanonical(make([]byte, 0, 32), v)
	return siphash.Hash(hashKey0, hashKey1, buf)
}

// HashRow hashes several values as one key.
func HashRow(values []Value) uint64 {
	buf := make([]byte, 0, 16*len(values))
	for _, v := range values {
		buf = appendCanonical(buf, v)
	}
	return siphash.Hash(hashKey0, hashKey1, buf)
}

func appendCanonical(buf []byte, v Value) []byte {
	buf = append(buf, byte(typeRank(v)))
	switch typeRank(v) {
	case typeNull:
	case typeBool:
		if v.(bool) {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case typeNumber:
		f, _ := ToNumber(v)
		if f == 0 {
			f = 0 // normalise -0
		}
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
	case typeString:
		s := stringValue(v)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	case typeArray:
		arr := asArray(v)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(arr)))
		for _, e := range arr {
			buf = appendCanonical(buf, e)
		}
	case typeObject:
		obj := asObject(v)
		keys := mergedKeys(obj, nil)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
		for _, k := range keys {
			buf = appendCanonical(buf, k)
			buf = appendCanonical(buf, obj[k])
		}
	}
	return buf
}

// MemoryUsage estimates the heap bytes held by a value beyond its
// interface slot. Used for accounting of dynamically built values.
func MemoryUsage(v Value) uint64 {
	switch t := v.(type) {
	case string:
		return uint64(len(t))
	case []Value:
		size := uint64(16 * len(t))
		for _, e := range t {
			size += MemoryUsage(e)
		}
		return size
	case []interface{}:
		size := uint64(16 * len(t))
		for _, e := range t {
			size += MemoryUsage(e)
		}
		return size
	case map[string]Value:
		size := uint64(48 * len(t))
		for k, e := range t {
			size += uint64(len(k)) + MemoryUsage(e)
		}
		return size
	case map[string]interface{}:
		size := uint64(48 * len(t))
		for k, e := range t {
			size += uint64(len(k)) + MemoryUsage(e)
		}
		return size
	}
	return 0
}

// FormatValue renders a value for display.
func FormatValue(v Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []Value, []interface{}:
		arr := asArray(v)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]Value, map[string]interface{}:
		obj := asObject(v)
		keys := mergedKeys(obj, nil)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ":" + FormatValue(obj[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func stringValue(v Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asArray(v Value) []Value {
	switch t := v.(type) {
	case []Value:
		return t
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	return nil
}

func asObject(v Value) map[string]Value {
	switch t := v.(type) {
	case map[string]Value:
		return t
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	}
	return nil
}

func mergedKeys(a, b map[string]Value) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func compareInts(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
