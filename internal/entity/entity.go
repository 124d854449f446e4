// Package entity defines the snapshot type that flows between callers, the
// local stores and the remote data service.
package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Well-known fields of an entity snapshot.
const (
	FieldID               = "id"
	FieldTempID           = "tempId"
	FieldOfflineTimestamp = "offlineTimestamp"
)

// localFields never leave the device.
var localFields = []string{FieldTempID, FieldOfflineTimestamp}

// Entity is a JSON object snapshot of a remote entity (a client record).
type Entity map[string]any

// ID returns the real, server-assigned id, or "" when unknown.
func (e Entity) ID() string {
	return stringField(e, FieldID)
}

// TempID returns the temporary id assigned on an offline create, or "".
func (e Entity) TempID() string {
	return stringField(e, FieldTempID)
}

// Identity returns the real id when known and the temporary id otherwise.
func (e Entity) Identity() string {
	if id := e.ID(); id != "" {
		return id
	}
	return e.TempID()
}

// Has reports whether field holds a non-empty value. Zero numbers and false
// count as present; nil and blank strings do not.
func (e Entity) Has(field string) bool {
	v, ok := e[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// Clone returns a shallow copy.
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Merge returns a copy of e overlaid with the fields of other.
func (e Entity) Merge(other Entity) Entity {
	out := e.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// WithoutLocalFields returns a copy with device-only bookkeeping removed,
// ready to be sent to the remote service.
func (e Entity) WithoutLocalFields() Entity {
	out := e.Clone()
	for _, f := range localFields {
		delete(out, f)
	}
	return out
}

func stringField(e Entity, field string) string {
	switch v := e[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
