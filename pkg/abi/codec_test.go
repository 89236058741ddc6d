package abi

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
)

const ownerAddr = "0:388820c348e6b2a5e38c8c8f1bf4088cdc384fc67219bd064f60c7d8d1092eb1"

func TestParseObject_AddressArray(t *testing.T) {
	params := []Param{{Name: "owners", Type: "address[]"}}
	raw := map[string]any{"owners": []any{ownerAddr, address.Zero}}

	out, err := ParseObject(params, raw)
	require.NoError(t, err)

	owners, ok := out["owners"].([]any)
	require.True(t, ok)
	require.Len(t, owners, 2)
	assert.Equal(t, address.New(ownerAddr), owners[0])
	assert.Equal(t, address.New(address.Zero), owners[1])
}

func TestParseObject_MapWithTupleValues(t *testing.T) {
	params := []Param{{
		Name: "balances",
		Type: "map(address,tuple)",
		Components: []Param{
			{Name: "owner", Type: "address"},
			{Name: "amount", Type: "uint128"},
		},
	}}
	raw := map[string]any{
		"balances": []any{
			[]any{ownerAddr, map[string]any{"owner": address.Zero, "amount": "100"}},
		},
	}

	out, err := ParseObject(params, raw)
	require.NoError(t, err)

	entries, ok := out["balances"].([]MapEntry)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, address.New(ownerAddr), entries[0].Key)
	assert.Equal(t, map[string]any{"owner": address.New(address.Zero), "amount": "100"}, entries[0].Value)
}

func TestParseObject_NestedMapValueType(t *testing.T) {
	params := []Param{{Name: "m", Type: "map(uint8,optional(map(address,uint128)))"}}
	raw := map[string]any{
		"m": []any{
			[]any{"1", []any{[]any{ownerAddr, "5"}}},
			[]any{"2", nil},
		},
	}

	out, err := ParseObject(params, raw)
	require.NoError(t, err)

	entries := out["m"].([]MapEntry)
	require.Len(t, entries, 2)
	inner := entries[0].Value.([]MapEntry)
	assert.Equal(t, address.New(ownerAddr), inner[0].Key)
	assert.Equal(t, "5", inner[0].Value)
	assert.Nil(t, entries[1].Value)
}

func TestParseObject_OptionalTuple(t *testing.T) {
	params := []Param{{
		Name:       "info",
		Type:       "optional(tuple)",
		Components: []Param{{Name: "root", Type: "address"}},
	}}

	out, err := ParseObject(params, map[string]any{"info": nil})
	require.NoError(t, err)
	assert.Nil(t, out["info"])

	out, err = ParseObject(params, map[string]any{"info": map[string]any{"root": ownerAddr}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"root": address.New(ownerAddr)}, out["info"])
}

func TestParseObject_ScalarsPassThrough(t *testing.T) {
	params := []Param{
		{Name: "value", Type: "uint128"},
		{Name: "flag", Type: "bool"},
		{Name: "data", Type: "cell"},
	}
	raw := map[string]any{"value": "1000000000", "flag": true, "data": "te6ccg=="}

	out, err := ParseObject(params, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestParseObject_MissingParameter(t *testing.T) {
	_, err := ParseObject([]Param{{Name: "dest", Type: "address"}}, map[string]any{})
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "dest", decodeErr.Path)

	out, err := ParseObject([]Param{{Name: "dest", Type: "optional(address)"}}, map[string]any{})
	require.NoError(t, err)
	v, present := out["dest"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestParseObject_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		param Param
		raw   any
		path  string
	}{
		{name: "array", param: Param{Name: "a", Type: "uint8[]"}, raw: "1", path: "a"},
		{name: "tuple", param: Param{Name: "t", Type: "tuple"}, raw: []any{}, path: "t"},
		{name: "address", param: Param{Name: "addr", Type: "address"}, raw: 12.0, path: "addr"},
		{name: "map pair", param: Param{Name: "m", Type: "map(uint8,bool)"}, raw: []any{[]any{"1"}}, path: "m[0]"},
		{
			name:  "nested tuple field",
			param: Param{Name: "t", Type: "tuple", Components: []Param{{Name: "owner", Type: "address"}}},
			raw:   map[string]any{"owner": false},
			path:  "t.owner",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObject([]Param{tt.param}, map[string]any{tt.param.Name: tt.raw})
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, tt.path, decodeErr.Path)
		})
	}
}

func TestSerialize_ReplacesAddressesRecursively(t *testing.T) {
	in := map[string]any{
		"dest":   address.New(ownerAddr),
		"owners": []any{address.New(address.Zero), "x"},
		"nested": map[string]any{"root": address.New(ownerAddr).Ptr()},
		"map":    []MapEntry{{Key: address.New(ownerAddr), Value: "7"}},
		"amount": "1",
	}

	out := SerializeObject(in)
	assert.Equal(t, map[string]any{
		"dest":   ownerAddr,
		"owners": []any{address.Zero, "x"},
		"nested": map[string]any{"root": ownerAddr},
		"map":    []any{[]any{ownerAddr, "7"}},
		"amount": "1",
	}, out)
}

func TestSerialize_RoundTripThroughParse(t *testing.T) {
	params := []Param{
		{Name: "dest", Type: "address"},
		{Name: "m", Type: "map(address,uint128)"},
	}
	raw := map[string]any{
		"dest": ownerAddr,
		"m":    []any{[]any{ownerAddr, "3"}},
	}

	parsed, err := ParseObject(params, raw)
	require.NoError(t, err)
	assert.Equal(t, raw, SerializeObject(parsed))
}

func TestMapEntry_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]MapEntry{{Key: address.New(ownerAddr), Value: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["`+ownerAddr+`",true]]`, string(data))
}

func TestSplitMapType(t *testing.T) {
	k, v, ok := splitMapType("map(address,map(uint8,tuple))")
	require.True(t, ok)
	assert.Equal(t, "address", k)
	assert.Equal(t, "map(uint8,tuple)", v)

	_, _, ok = splitMapType("map(address)")
	assert.False(t, ok)
}
