package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Ratio float64 `json:"ratio"`
}

func TestJSONWeakNumbers(t *testing.T) {
	out, err := JSON[sample]([]byte(`{"name":" kevin ","count":"12","ratio":0.5}`))
	require.NoError(t, err)
	assert.Equal(t, "kevin", out.Name)
	assert.Equal(t, int64(12), out.Count)
	assert.Equal(t, 0.5, out.Ratio)
}

func TestJSONLargeInteger(t *testing.T) {
	out, err := JSON[sample]([]byte(`{"count":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), out.Count)
}

func TestStrictRejectsStrings(t *testing.T) {
	_, err := Map[sample](map[string]any{"count": "12"}, Options{WeaklyTypedInput: false})
	assert.Error(t, err)
}

func TestRejectsNonObject(t *testing.T) {
	_, err := JSON[sample]([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = Map[sample](nil)
	assert.Error(t, err)
}
