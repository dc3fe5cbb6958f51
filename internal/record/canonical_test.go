package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool true", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"empty list", List{}, "[]"},
		{"empty map", Map{}, "{}"},
		{"list of ints", List{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	m := Map{
		"z": Map{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}

	result, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, which sorts before 0xE000
	// in UTF-16 but after it in UTF-8.
	m := Map{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	result, err = MarshalCanonical(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	result, err := MarshalCanonical(String(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(Map{"a": nil})
	require.Error(t, err)
}

func TestDecodeRoundTrip(t *testing.T) {
	prov := Map{
		"a": Int(1),
		"b": List{Int(1), Int(2), Int(3)},
		"c": Map{"x": Bool(true), "y": String("foo"), "z": String("bar")},
		"d": Null{},
	}

	data, err := MarshalCanonical(prov)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, Equal(prov, decoded))
	assert.Equal(t, prov, decoded)
}

func TestDecodeLargeIntegers(t *testing.T) {
	decoded, err := Decode([]byte(`{"n":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), decoded["n"])
}

func TestDecodeRejectsFloats(t *testing.T) {
	_, err := Decode([]byte(`{"n":1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestMapJSONMarshalerIsCanonical(t *testing.T) {
	data, err := json.Marshal(struct {
		M Map `json:"m"`
	}{M: Map{"b": Int(1), "a": Int(2)}})
	require.NoError(t, err)
	assert.Equal(t, `{"m":{"a":2,"b":1}}`, string(data))
}
