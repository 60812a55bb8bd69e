package stream

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// StreamData accumulates the auxiliary fields carried by data frames during
// one response. Later frames overwrite earlier keys (shallow merge).
type StreamData map[string]json.RawMessage

// Merge decodes raw as a JSON object and folds its top-level keys into d.
func (d StreamData) Merge(raw []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.Wrap(err, "failed to decode data frame")
	}
	if obj == nil {
		return errors.New("data frame is not a JSON object")
	}
	for k, v := range obj {
		d[k] = v
	}
	return nil
}

// ID returns the server-assigned message id, if a data frame supplied one.
func (d StreamData) ID() string {
	var id string
	if err := d.Get("id", &id); err != nil {
		return ""
	}
	return id
}

// Get decodes the value stored under key into v. A missing key leaves v
// untouched and returns nil.
func (d StreamData) Get(key string, v any) error {
	raw, ok := d[key]
	if !ok {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(raw, v), "failed to decode stream data field %q", key)
}

// Clone returns an independent copy of d.
func (d StreamData) Clone() StreamData {
	out := make(StreamData, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
