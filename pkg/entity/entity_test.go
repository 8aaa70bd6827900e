package entity

import (
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsOrder(t *testing.T) {
	e, err := Decode([]byte(`{"RowKey":"1","PartitionKey":"p","b":{"z":1,"a":2},"a":[1,"x"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"RowKey", "PartitionKey", "b", "a"}, e.Keys())

	out, err := gojson.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"RowKey":"1","PartitionKey":"p","b":{"z":1,"a":2},"a":[1,"x"]}`, string(out))
	assert.Equal(t, `{"RowKey":"1","PartitionKey":"p","b":{"z":1,"a":2},"a":[1,"x"]}`, string(out))
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestValueTypes(t *testing.T) {
	e := MustDecode(`{
		"Name": "abc",
		"Count": 12,
		"Ratio": 1.5,
		"Enabled": true,
		"Big": "9223372036854775807",
		"Big@odata.type": "Edm.Int64",
		"When": "2020-01-17T16:07:34Z",
		"When@odata.type": "Edm.DateTime",
		"Missing": null
	}`)

	tests := []struct {
		name     string
		wantType EdmType
		wantStr  string
		explicit bool
	}{
		{"Name", EdmString, "abc", false},
		{"Count", EdmInt32, "12", false},
		{"Ratio", EdmDouble, "1.5", false},
		{"Enabled", EdmBoolean, "true", false},
		{"Big", EdmInt64, "9223372036854775807", true},
		{"When", EdmDateTime, "2020-01-17T16:07:34Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := e.Value(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, v.Type)
			assert.Equal(t, tt.wantStr, v.String())
			assert.Equal(t, tt.explicit, v.Explicit)
		})
	}

	_, ok := e.Value("Missing")
	assert.False(t, ok, "null is treated as absent")
	_, ok = e.Value("Nope")
	assert.False(t, ok)
}

func TestZeroValuesArePresent(t *testing.T) {
	e := MustDecode(`{"n":0,"s":""}`)

	v, ok := e.Value("n")
	require.True(t, ok)
	assert.Equal(t, "0", v.String())

	v, ok = e.Value("s")
	require.True(t, ok)
	assert.Equal(t, "", v.String())
}

func TestStripMetadata(t *testing.T) {
	e := MustDecode(`{"odata.metadata":"m","odata.etag":"W/1","PartitionKey":"p","Age":1,"Age@odata.type":"Edm.Int64"}`)
	e.StripMetadata()

	assert.Equal(t, []string{"PartitionKey", "Age", "Age@odata.type"}, e.Keys())
}

func TestCloneIsDeep(t *testing.T) {
	e := MustDecode(`{"a":{"b":1}}`)
	c := e.Clone()

	nested, _ := c.Get("a")
	nested.(*Object).Set("b", "changed")

	orig, _ := e.Get("a")
	b, _ := orig.(*Object).Get("b")
	assert.Equal(t, gojson.Number("1"), b)
}

func TestObjectSetDelete(t *testing.T) {
	o := NewObject()
	o.Set("a", 1)
	o.Set("b", 2)
	o.Set("a", 3)
	assert.Equal(t, []string{"a", "b"}, o.Keys())

	o.Delete("a")
	o.Delete("missing")
	assert.Equal(t, []string{"b"}, o.Keys())
	assert.False(t, o.Has("a"))
	assert.Equal(t, 1, o.Len())
}

func TestParseEdmType(t *testing.T) {
	assert.Equal(t, EdmInt64, ParseEdmType("Int64"))
	assert.Equal(t, EdmInt64, ParseEdmType("Edm.Int64"))
}
