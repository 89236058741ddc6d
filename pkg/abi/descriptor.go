// Package abi holds contract ABI descriptors and the token value codec that
// converts between wire values and rich values driven by ABI parameter types.
package abi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ConstructorName is the function name reserved for deployment.
const ConstructorName = "constructor"

// Param describes one typed ABI parameter. Components are set for tuples and
// for containers of tuples.
type Param struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Components []Param `json:"components,omitempty"`
}

type Function struct {
	Name    string  `json:"name"`
	ID      string  `json:"id,omitempty"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
}

type Event struct {
	Name   string  `json:"name"`
	ID     string  `json:"id,omitempty"`
	Inputs []Param `json:"inputs"`
}

// Descriptor is a parsed, immutable contract interface.
type Descriptor struct {
	Version   int        `json:"ABI version"`
	Header    []string   `json:"header,omitempty"`
	Functions []Function `json:"functions"`
	Events    []Event    `json:"events"`

	raw         string
	fingerprint string
	functions   map[string]int
	events      map[string]int
}

var (
	ErrMissingFunctions = errors.New("invalid abi: functions array required")
	ErrMissingEvents    = errors.New("invalid abi: events array required")
)

// Parse decodes and validates an ABI document.
func Parse(data []byte) (*Descriptor, error) {
	var shape struct {
		Functions json.RawMessage `json:"functions"`
		Events    json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("decode abi: %w", err)
	}
	if !isJSONArray(shape.Functions) {
		return nil, ErrMissingFunctions
	}
	if !isJSONArray(shape.Events) {
		return nil, ErrMissingEvents
	}

	d := &Descriptor{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode abi: %w", err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, fmt.Errorf("compact abi: %w", err)
	}
	d.raw = compact.String()
	sum := sha256.Sum256(compact.Bytes())
	d.fingerprint = hex.EncodeToString(sum[:])

	d.functions = make(map[string]int, len(d.Functions))
	for i, fn := range d.Functions {
		if _, dup := d.functions[fn.Name]; dup {
			return nil, fmt.Errorf("invalid abi: duplicate function %q", fn.Name)
		}
		d.functions[fn.Name] = i
	}
	d.events = make(map[string]int, len(d.Events))
	for i, ev := range d.Events {
		if _, dup := d.events[ev.Name]; dup {
			return nil, fmt.Errorf("invalid abi: duplicate event %q", ev.Name)
		}
		d.events[ev.Name] = i
	}
	return d, nil
}

// ParseString is Parse for JSON held in a string.
func ParseString(s string) (*Descriptor, error) {
	return Parse([]byte(s))
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// JSON returns the compact JSON encoding of the document as it was parsed.
func (d *Descriptor) JSON() string {
	return d.raw
}

// Fingerprint identifies the document by content.
func (d *Descriptor) Fingerprint() string {
	return d.fingerprint
}

func (d *Descriptor) Function(name string) (Function, bool) {
	i, ok := d.functions[name]
	if !ok {
		return Function{}, false
	}
	return d.Functions[i], true
}

func (d *Descriptor) Event(name string) (Event, bool) {
	i, ok := d.events[name]
	if !ok {
		return Event{}, false
	}
	return d.Events[i], true
}
