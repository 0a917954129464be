package fingerprint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_KeyOrderIndependent(t *testing.T) {
	a, err := Of(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := Of(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestOf_DifferentValues(t *testing.T) {
	a, err := Of(map[string]any{"a": 1})
	require.NoError(t, err)
	b, err := Of(map[string]any{"a": 2})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOf_StructMatchesEquivalentMap(t *testing.T) {
	type payload struct {
		Quantity   int    `json:"quantity"`
		CustomerID string `json:"customer_id"`
		ItemID     string `json:"item_id"`
	}

	fromStruct, err := Of(payload{CustomerID: "c1", ItemID: "i1", Quantity: 3})
	require.NoError(t, err)
	fromMap, err := Of(map[string]any{"item_id": "i1", "quantity": 3, "customer_id": "c1"})
	require.NoError(t, err)

	assert.Equal(t, fromMap, fromStruct)
}

func TestCanonical_Layout(t *testing.T) {
	got, err := Canonical(map[string]any{
		"z":      []any{1, "x<y", true, nil},
		"a":      map[string]any{"d": 1, "c": 2},
		"quoted": `he said "hi"`,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"c":2,"d":1},"quoted":"he said \"hi\"","z":[1,"x<y",true,null]}`, string(got))
}

func TestCanonical_NFCNormalization(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent.
	composed, err := Of(map[string]any{"name": "caf\u00e9"})
	require.NoError(t, err)
	decomposed, err := Of(map[string]any{"name": "cafe\u0301"})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestOf_NestedKeyOrder(t *testing.T) {
	a, err := Of(map[string]any{"outer": map[string]any{"x": 1, "y": []any{map[string]any{"p": 1, "q": 2}}}})
	require.NoError(t, err)
	b, err := Of(map[string]any{"outer": map[string]any{"y": []any{map[string]any{"q": 2, "p": 1}}, "x": 1}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestOf_Unserializable(t *testing.T) {
	cases := map[string]any{
		"channel": make(chan int),
		"nan":     math.NaN(),
		"func":    func() {},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Of(in)
			require.Error(t, err)

			var encErr *EncodingError
			assert.True(t, errors.As(err, &encErr))
		})
	}
}
