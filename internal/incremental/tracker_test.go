package incremental

import (
	"os"
	"path/filepath"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

func TestMax(t *testing.T) {
	tests := []struct {
		a, b, want interface{}
	}{
		{-100, -100, -100},
		{-100, -99, -99},
		{-99.2, -99.1, -99.1},
		{"-100", "-99", "-99"},
		{"9999", "10000", "10000"},
		{"0", "100", "100"},
		{gojson.Number("7"), gojson.Number("12"), gojson.Number("12")},
		{gojson.Number("1.5"), "1.25", gojson.Number("1.5")},
		{"abc", "Abc", "abc"},
		{"abc", "def", "def"},
		{"abc", "Def", "abc"},
		{"dog", "dog2", "dog2"},
		{"dog2", "dog3", "dog3"},
		{"2020-01-17T16:07:34", "2020-04-01T08:22:49", "2020-04-01T08:22:49"},
		{"2020-01-02T00:00:00", "2020-01-01T00:00:01", "2020-01-02T00:00:00"},
		{"2020-01-01T00:00:00", "2020-01-01T00:00:01", "2020-01-01T00:00:01"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Max(tt.a, tt.b), "max(%v, %v)", tt.a, tt.b)
		assert.Equal(t, tt.want, Max(tt.b, tt.a), "max(%v, %v)", tt.b, tt.a)
	}

	assert.Equal(t, "x", Max(nil, "x"))
	assert.Equal(t, "x", Max("x", nil))
}

func row(t *testing.T, s string) *entity.Entity {
	t.Helper()
	e, err := entity.Decode([]byte(s))
	require.NoError(t, err)
	return e
}

func TestTrackerDisabled(t *testing.T) {
	tr := New("", State{Key: "Age", Value: gojson.Number("5"), Type: "Edm.Int32"}, nil)

	assert.False(t, tr.Enabled())
	assert.Nil(t, tr.Watermark())
	require.NoError(t, tr.Process(row(t, `{}`), 0))
	_, ok := tr.State()
	assert.False(t, ok)
}

func TestTrackerTracksMaximum(t *testing.T) {
	tr := New("Age", State{}, zaptest.NewLogger(t))

	for i, r := range []string{`{"Age":5}`, `{"Age":12}`, `{"Age":7}`} {
		require.NoError(t, tr.Process(row(t, r), i))
	}

	st, ok := tr.State()
	require.True(t, ok)
	assert.Equal(t, State{Key: "Age", Value: gojson.Number("12"), Type: "Edm.Int32"}, st)
}

func TestTrackerRejectsMissingValue(t *testing.T) {
	tr := New("Age", State{}, nil)
	require.NoError(t, tr.Process(row(t, `{"Age":1}`), 0))

	err := tr.Process(row(t, `{"Age":null}`), 1)
	require.Error(t, err)
	assert.True(t, errors.IsUser(err))
	assert.Equal(t, `Missing incremental fetching key "Age" in the row "2".`, err.Error())

	err = tr.Process(row(t, `{"Other":1}`), 2)
	assert.EqualError(t, err, `Missing incremental fetching key "Age" in the row "3".`)
}

func TestTrackerRejectsTypeDrift(t *testing.T) {
	tr := New("Age", State{}, nil)
	require.NoError(t, tr.Process(row(t, `{"Age":1}`), 0))

	err := tr.Process(row(t, `{"Age":"1","Age@odata.type":"Edm.Int64"}`), 1)
	assert.EqualError(t, err, `Incremental column type mismatch: "Edm.Int32" and "Edm.Int64" types found.`)
}

func TestTrackerRejectsDisallowedType(t *testing.T) {
	tr := New("Flag", State{}, nil)

	err := tr.Process(row(t, `{"Flag":true}`), 0)
	assert.EqualError(t, err, `Unexpected type "Edm.Boolean" of the incremental fetching "Flag" key. `+
		`Allowed types "Edm.String", "Edm.Int32", "Edm.Int64", "Edm.DateTime", "Edm.Double", "Edm.Guid".`)
}

func TestTrackerStringLength(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tr := New("Code", State{}, zap.New(core))

	require.NoError(t, tr.Process(row(t, `{"Code":"a01"}`), 0))
	require.NoError(t, tr.Process(row(t, `{"Code":"a03"}`), 1))
	require.NoError(t, tr.Process(row(t, `{"Code":"a02"}`), 2))
	assert.Equal(t, 1, logs.Len(), "string warning is logged once")

	st, ok := tr.State()
	require.True(t, ok)
	assert.Equal(t, "a03", st.Value)

	err := tr.Process(row(t, `{"Code":"a1000"}`), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `found "a03" (length=3) and "a1000" (length=5)`)
	assert.Contains(t, err.Error(), `a key with a different type: "Edm.Int32", "Edm.Int64", "Edm.DateTime", "Edm.Double", "Edm.Guid".`)
}

func TestTrackerSeededFromPriorState(t *testing.T) {
	prior := State{Key: "Age", Value: gojson.Number("10"), Type: "Edm.Int32"}
	tr := New("Age", prior, nil)

	assert.Equal(t, &query.Watermark{Key: "Age", Value: "10", Type: entity.EdmInt32}, tr.Watermark())

	// a row below the watermark never lowers it
	require.NoError(t, tr.Process(row(t, `{"Age":3}`), 0))
	st, _ := tr.State()
	assert.Equal(t, gojson.Number("10"), st.Value)

	// a prior state of another key is discarded
	other := New("Name", prior, nil)
	assert.Nil(t, other.Watermark())
	assert.False(t, other.HasValue())
}

func TestTrackerZeroWatermarkIsPresent(t *testing.T) {
	tr := New("Seq", State{Key: "Seq", Value: gojson.Number("0"), Type: "Edm.Int64"}, nil)

	require.True(t, tr.HasValue())
	assert.Equal(t, "0", tr.Watermark().Value)

	empty := New("Name", State{Key: "Name", Value: "", Type: "Edm.String"}, nil)
	assert.True(t, empty.HasValue())
}

func TestTrackerSeededTypeMustMatch(t *testing.T) {
	tr := New("Age", State{Key: "Age", Value: gojson.Number("10"), Type: "Edm.Int64"}, nil)

	err := tr.Process(row(t, `{"Age":11}`), 0)
	assert.EqualError(t, err, `Incremental column type mismatch: "Edm.Int64" and "Edm.Int32" types found.`)
}

func TestPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "state.json")

	tr := New("Age", State{}, nil)
	require.NoError(t, tr.Persist(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing written without a value")

	require.NoError(t, tr.Process(row(t, `{"Age":42}`), 0))
	require.NoError(t, tr.Persist(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"maxIncrementalKey":"Age","maxIncrementalValue":42,"maxIncrementalValueType":"Edm.Int32"}`, string(data))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, State{Key: "Age", Value: gojson.Number("42"), Type: "Edm.Int32"}, loaded)
}

func TestLoadState(t *testing.T) {
	dir := t.TempDir()

	st, err := LoadState(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, State{}, st)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  "), 0o644))
	st, err = LoadState(empty)
	require.NoError(t, err)
	assert.Equal(t, State{}, st)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadState(bad)
	assert.Error(t, err)
}
