package abi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SVOIcom/everscale-connect-backend/pkg/address"
)

// MapEntry is one parsed key/value pair of an ABI map. Parsed maps keep the
// wire order, so they are represented as []MapEntry rather than a Go map.
type MapEntry struct {
	Key   any
	Value any
}

// MarshalJSON encodes the entry in its wire form, a two element array.
func (e MapEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{Serialize(e.Key), Serialize(e.Value)})
}

// DecodeError reports a wire value that does not match its declared ABI type.
type DecodeError struct {
	Path   string
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %s", e.Path, e.Type, e.Reason)
}

// Serialize converts a rich token value into its wire form: addresses become
// strings, containers are walked recursively and every other value passes
// through unchanged.
func Serialize(v any) any {
	switch t := v.(type) {
	case address.Address:
		return t.String()
	case *address.Address:
		if t == nil {
			return nil
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Serialize(item)
		}
		return out
	case map[string]any:
		return SerializeObject(t)
	case []MapEntry:
		out := make([]any, len(t))
		for i, entry := range t {
			out[i] = []any{Serialize(entry.Key), Serialize(entry.Value)}
		}
		return out
	default:
		return v
	}
}

// SerializeObject is Serialize for a named token object.
func SerializeObject(obj map[string]any) map[string]any {
	if obj == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = Serialize(v)
	}
	return out
}

// ParseObject decodes a wire token object against the declared parameters.
// A parameter absent from raw is a DecodeError unless its type is optional,
// in which case it decodes to nil.
func ParseObject(params []Param, raw map[string]any) (map[string]any, error) {
	return parseObject("", params, raw)
}

func parseObject(prefix string, params []Param, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for _, p := range params {
		path := joinPath(prefix, p.Name)
		value, present := raw[p.Name]
		if !present {
			if isOptional(p.Type) {
				out[p.Name] = nil
				continue
			}
			return nil, &DecodeError{Path: path, Type: p.Type, Reason: "missing value"}
		}
		parsed, err := parseValue(path, p, value)
		if err != nil {
			return nil, err
		}
		out[p.Name] = parsed
	}
	return out, nil
}

// ParseValue decodes a single wire value against param.
func ParseValue(param Param, raw any) (any, error) {
	return parseValue(param.Name, param, raw)
}

func parseValue(path string, p Param, raw any) (any, error) {
	typ := strings.TrimSpace(p.Type)

	if strings.HasPrefix(typ, "map(") && strings.HasSuffix(typ, ")") {
		return parseMap(path, p, typ, raw)
	}

	if strings.HasSuffix(typ, "[]") {
		items, ok := raw.([]any)
		if !ok {
			return nil, &DecodeError{Path: path, Type: typ, Reason: fmt.Sprintf("expected array, got %T", raw)}
		}
		elem := Param{Name: p.Name, Type: strings.TrimSuffix(typ, "[]"), Components: p.Components}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := parseValue(fmt.Sprintf("%s[%d]", path, i), elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	if isOptional(typ) {
		if raw == nil {
			return nil, nil
		}
		inner := Param{Name: p.Name, Type: typ[len("optional(") : len(typ)-1], Components: p.Components}
		return parseValue(path, inner, raw)
	}

	switch typ {
	case "tuple":
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &DecodeError{Path: path, Type: typ, Reason: fmt.Sprintf("expected object, got %T", raw)}
		}
		return parseObject(path, p.Components, obj)
	case "address":
		switch s := raw.(type) {
		case string:
			return address.New(s), nil
		case address.Address:
			return s, nil
		default:
			return nil, &DecodeError{Path: path, Type: typ, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}
	default:
		return raw, nil
	}
}

func parseMap(path string, p Param, typ string, raw any) (any, error) {
	keyType, valueType, ok := splitMapType(typ)
	if !ok {
		return nil, &DecodeError{Path: path, Type: typ, Reason: "malformed map type"}
	}
	pairs, isSlice := raw.([]any)
	if !isSlice {
		return nil, &DecodeError{Path: path, Type: typ, Reason: fmt.Sprintf("expected array of pairs, got %T", raw)}
	}

	keyParam := Param{Type: keyType}
	valueParam := Param{Type: valueType, Components: p.Components}
	out := make([]MapEntry, len(pairs))
	for i, item := range pairs {
		pair, isPair := item.([]any)
		if !isPair || len(pair) != 2 {
			return nil, &DecodeError{Path: fmt.Sprintf("%s[%d]", path, i), Type: typ, Reason: "expected [key, value] pair"}
		}
		k, err := parseValue(fmt.Sprintf("%s[%d].key", path, i), keyParam, pair[0])
		if err != nil {
			return nil, err
		}
		v, err := parseValue(fmt.Sprintf("%s[%d].value", path, i), valueParam, pair[1])
		if err != nil {
			return nil, err
		}
		out[i] = MapEntry{Key: k, Value: v}
	}
	return out, nil
}

// splitMapType splits "map(K,V)" at the first top-level comma, so value types
// like "map(uint8,optional(map(address,uint128)))" survive.
func splitMapType(typ string) (string, string, bool) {
	body := typ[len("map(") : len(typ)-1]
	depth := 0
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(body[:i]), strings.TrimSpace(body[i+1:]), true
			}
		}
	}
	return "", "", false
}

func isOptional(typ string) bool {
	return strings.HasPrefix(typ, "optional(") && strings.HasSuffix(typ, ")") && !strings.HasSuffix(typ, "[]")
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
