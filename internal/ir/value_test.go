package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"string", `"hello"`, String("hello")},
		{"int", `42`, Int(42)},
		{"negative int", `-7`, Int(-7)},
		{"float", `0.95`, Float(0.95)},
		{"integral float literal", `5.0`, Float(5)},
		{"exponent", `1e3`, Float(1000)},
		{"bool", `true`, Bool(true)},
		{"null", `null`, Null{}},
		{"list", `["a", 1]`, List{String("a"), Int(1)}},
		{"mapping", `{"a": {"b": []}}`, Mapping{"a": Mapping{"b": List{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %#v", got)
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	inputs := []string{
		``,
		`{not json`,
		`{"title": "x"`,
		`{"a": 1} trailing`,
		`{"a": 1}{"b": 2}`,
		`[1, 2,]`,
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Decode([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	v, err := Decode([]byte("{\"a\": 1}\n\t "))
	require.NoError(t, err)
	assert.Equal(t, Mapping{"a": Int(1)}, v)
}

func TestDecodeTrailingDataSentinel(t *testing.T) {
	_, err := Decode([]byte(`1 2`))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"title": "x",
		"count": 3,
		"score": 0.5,
		"tags":  []string{"a", "b"},
		"meta":  map[string]string{"k": "v"},
		"none":  nil,
	})
	require.NoError(t, err)

	m, ok := v.(Mapping)
	require.True(t, ok)
	assert.Equal(t, String("x"), m["title"])
	assert.Equal(t, Int(3), m["count"])
	assert.Equal(t, Float(0.5), m["score"])
	assert.Equal(t, StringList("a", "b"), m["tags"])
	assert.Equal(t, Mapping{"k": String("v")}, m["meta"])
	assert.Equal(t, Null{}, m["none"])
}

func TestFromAnyUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny([]any{"ok", make(chan int)})
	assert.ErrorContains(t, err, "list[1]")
}

func TestToAnyRoundTrip(t *testing.T) {
	original := Mapping{
		"title": String("x"),
		"tags":  StringList("go"),
		"n":     Int(2),
	}

	back, err := FromAny(ToAny(original))
	require.NoError(t, err)
	assert.True(t, Equal(original, back))
}

func TestCloneIsDeep(t *testing.T) {
	original := Mapping{"tags": StringList("a"), "nested": Mapping{"x": StringList("y")}}
	c := original.Clone()

	c["tags"].(List)[0] = String("changed")
	c["nested"].(Mapping)["x"] = StringList()

	assert.Equal(t, StringList("a"), original["tags"])
	assert.Equal(t, StringList("y"), original["nested"].(Mapping)["x"])
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(List{}, List(nil)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(Int(1), Float(1)))
	assert.False(t, Equal(String("a"), nil))
	assert.False(t, Equal(Mapping{"a": Int(1)}, Mapping{"b": Int(1)}))
	assert.True(t, Equal(Mapping{"a": StringList("x")}, Mapping{"a": StringList("x")}))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAbsent, KindOf(nil))
	assert.Equal(t, KindNull, KindOf(Null{}))
	assert.Equal(t, KindString, KindOf(String("")))
	assert.Equal(t, KindInt, KindOf(Int(0)))
	assert.Equal(t, KindFloat, KindOf(Float(0)))
	assert.Equal(t, KindBool, KindOf(Bool(false)))
	assert.Equal(t, KindList, KindOf(List{}))
	assert.Equal(t, KindMapping, KindOf(Mapping{}))
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 (surrogate pair D83D DE00) sorts before U+FB01 in UTF-16
	// but after it in UTF-8.
	m := Mapping{"\ufb01": Int(1), "\U0001F600": Int(2), "a": Int(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\ufb01"}, m.SortedKeys())
}

func TestMappingJSON(t *testing.T) {
	m := Mapping{"b": StringList("x"), "a": Int(1), "c": Null{}}

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":["x"],"c":null}`, string(b))

	var back Mapping
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, Equal(m, back))
}

func TestMappingUnmarshalRejectsNonMapping(t *testing.T) {
	var m Mapping
	err := json.Unmarshal([]byte(`[1]`), &m)
	assert.ErrorContains(t, err, "expected mapping")
}
