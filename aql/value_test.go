package aql

import (
	"context"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name        string
		left, right Value
		want        int
	}{
		{"null equals null", nil, nil, 0},
		{"null before bool", nil, false, -1},
		{"false before true", false, true, -1},
		{"bool before number", true, int64(0), -1},
		{"int equals float", int64(2), 2.0, 0},
		{"int and int64", 3, int64(2), 1},
		{"number before string", 99.5, "a", -1},
		{"strings", "abc", "abd", -1},
		{"string before array", "z", []Value{}, -1},
		{"array prefix", []Value{int64(1)}, []Value{int64(1), int64(2)}, -1},
		{"array elements", []Value{int64(2)}, []Value{int64(1), int64(9)}, 1},
		{"plain slices", []interface{}{1.0}, []Value{int64(1)}, 0},
		{"array before object", []Value{}, map[string]Value{}, -1},
		{"object missing key", map[string]Value{"a": int64(1)}, map[string]Value{"a": int64(1), "b": nil}, -1},
		{"object values", map[string]Value{"a": int64(2)}, map[string]interface{}{"a": 1.0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.left, tt.right))
			assert.Equal(t, -tt.want, CompareValues(tt.right, tt.left))
		})
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []Value{nil, false, int64(0), 0, 0.0, math.NaN(), ""} {
		assert.False(t, Truthy(v), "%v", v)
	}
	for _, v := range []Value{true, int64(-1), 0.5, "0", []Value{}, map[string]Value{}} {
		assert.True(t, Truthy(v), "%v", v)
	}
}

func TestToNumberAndLength(t *testing.T) {
	f, ok := ToNumber(int64(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = ToNumber(" 2.5 ")
	assert.False(t, ok)
	assert.Equal(t, 2.5, f)

	assert.Equal(t, int64(0), Length(nil))
	assert.Equal(t, int64(3), Length("héé"))
	assert.Equal(t, int64(2), Length([]Value{nil, nil}))
	assert.Equal(t, int64(1), Length(map[string]Value{"a": nil}))
	assert.Equal(t, int64(3), Length(int64(123)))
}

func TestHashFollowsEquality(t *testing.T) {
	assert.Equal(t, Hash(int64(1)), Hash(1.0))
	assert.Equal(t, Hash(0.0), Hash(math.Copysign(0, -1)))
	assert.Equal(t,
		Hash(map[string]Value{"a": int64(1), "b": "x"}),
		Hash(map[string]interface{}{"b": "x", "a": 1.0}))
	assert.NotEqual(t, Hash("1"), Hash(int64(1)))
	assert.NotEqual(t, HashRow([]Value{"ab", "c"}), HashRow([]Value{"a", "bc"}))
}

func TestMemoryUsage(t *testing.T) {
	assert.Equal(t, uint64(0), MemoryUsage(int64(1)))
	assert.Equal(t, uint64(3), MemoryUsage("abc"))
	assert.Equal(t, uint64(2*16+1), MemoryUsage([]Value{"a", nil}))
	assert.Equal(t, uint64(48+1+2), MemoryUsage(map[string]Value{"k": "vv"}))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", FormatValue(nil))
	assert.Equal(t, `"a\"b"`, FormatValue(`a"b`))
	assert.Equal(t, "2.5", FormatValue(2.5))
	assert.Equal(t, "7", FormatValue(int64(7)))
	assert.Equal(t, `[1,"x",true]`, FormatValue([]Value{int64(1), "x", true}))
	assert.Equal(t, `{"a":1,"b":[]}`, FormatValue(map[string]Value{"b": []Value{}, "a": int64(1)}))
}

func TestErrorMarkers(t *testing.T) {
	assert.True(t, IsQueryKilled(ErrQueryKilled))
	assert.Equal(t, ErrQueryKilled, NewQueryKilledError(nil))

	err := NewQueryKilledError(context.DeadlineExceeded)
	assert.True(t, IsQueryKilled(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, IsResourceLimitExceeded(err))

	err = errors.Wrap(NewResourceLimitError(64, 10, 32), "allocating")
	assert.True(t, IsResourceLimitExceeded(err))
	assert.Contains(t, err.Error(), "requested 64 bytes with 10 of 32 in use")
}

func TestRegisterSetAndStates(t *testing.T) {
	set := RegisterSet{0, 3}
	assert.True(t, set.Contains(3))
	assert.False(t, set.Contains(1))

	assert.Equal(t, "WAITING", Waiting.String())
	assert.Equal(t, Done, ExecutorDone.ToExecutionState())
	assert.Equal(t, HasMore, ExecutorHasMore.ToExecutionState())
}
