package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"bool", true, Bool(true)},
		{"string", "x", String("x")},
		{"int", 7, Int(7)},
		{"json number", json.Number("12"), Int(12)},
		{"integral float", float64(3), Int(3)},
		{"string slice", []string{"a", "b"}, Array{String("a"), String("b")}},
		{"nested", map[string]any{"k": []any{1, "two"}}, Object{"k": Array{Int(1), String("two")}}},
		{"passthrough", String("already"), String("already")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAnyRejectsFloats(t *testing.T) {
	_, err := FromAny(1.5)
	assert.Error(t, err)

	_, err = FromAny(json.Number("2.25"))
	assert.Error(t, err)

	_, err = FromAny(map[string]any{"accuracy": 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accuracy")
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAnyRoundTrip(t *testing.T) {
	in := map[string]any{
		"label": "home",
		"rank":  int64(2),
		"tags":  []any{"a", true},
		"none":  nil,
	}
	v, err := FromAny(in)
	require.NoError(t, err)
	assert.Equal(t, in, ToAny(v))
}

func TestEqualAndCompare(t *testing.T) {
	a := Object{"x": Int(1), "y": String("b")}
	b := Object{"y": String("b"), "x": Int(1)}
	c := Object{"x": Int(2)}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.Equal(t, 0, Compare(a, b))
	assert.NotEqual(t, 0, Compare(a, c))
	assert.Equal(t, -Compare(a, c), Compare(c, a))
}

func TestCloneIsDeep(t *testing.T) {
	orig := Object{"list": Array{String("a")}, "obj": Object{"k": Int(1)}}
	cp := orig.Clone()

	cp["list"].(Array)[0] = String("changed")
	cp["obj"].(Object)["k"] = Int(9)

	assert.Equal(t, String("a"), orig["list"].(Array)[0])
	assert.Equal(t, Int(1), orig["obj"].(Object)["k"])
	assert.Nil(t, Object(nil).Clone())
}

func TestObjectJSON(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"b":9007199254740993,"a":"x"}`), &obj))
	assert.Equal(t, Int(9007199254740993), obj["b"], "large ints keep full precision")

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":9007199254740993}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &obj))
}

func TestDecodeRejectsFloat(t *testing.T) {
	_, err := Decode([]byte(`{"lat":1.25}`))
	assert.Error(t, err)
}
