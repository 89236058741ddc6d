package address

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootAddr = "0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1"

func TestNew_SameStringCompareEqual(t *testing.T) {
	a := New(rootAddr)
	b := New(rootAddr)
	assert.Equal(t, a, b)
	assert.True(t, a == b)
	assert.True(t, a.Equals(b))
	assert.Equal(t, rootAddr, a.String())
}

func TestNew_CanonicalizesHexCase(t *testing.T) {
	upper := "0:388820C348E6B2A5E38C8C8F1BF4088CDC384FC67219BD064F60C7D8D1092EB1"
	assert.Equal(t, New(rootAddr), New(upper))
}

func TestNew_KeepsUnparseableVerbatim(t *testing.T) {
	a := New("  not-an-address ")
	assert.Equal(t, "not-an-address", a.String())
	assert.False(t, a.IsZero())
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := Parse("0:xyz")
	require.Error(t, err)

	_, err = Parse("")
	require.Error(t, err)
}

func TestZeroAddressIsNotUnset(t *testing.T) {
	assert.False(t, New(Zero).IsZero())
	assert.True(t, Address{}.IsZero())
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Src  *Address `json:"src,omitempty"`
		Dst  Address  `json:"dst"`
		Null Address  `json:"null"`
	}

	in := wrapper{Src: New(rootAddr).Ptr(), Dst: New(Zero)}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"src":"`+rootAddr+`","dst":"`+Zero+`","null":""}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"src":"`+rootAddr+`","dst":"`+Zero+`","null":null}`), &out))
	require.NotNil(t, out.Src)
	assert.True(t, out.Src.Equals(New(rootAddr)))
	assert.Equal(t, New(Zero), out.Dst)
	assert.True(t, out.Null.IsZero())
}

func TestAddressAsMapKey(t *testing.T) {
	seen := map[Address]int{}
	seen[New(rootAddr)]++
	seen[New(rootAddr)]++
	assert.Equal(t, 2, seen[New(rootAddr)])
}
