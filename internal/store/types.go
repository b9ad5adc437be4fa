package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// SyncStatus is the replication state of a record or queue item.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusError:
		return true
	}
	return false
}

// Operation is the kind of mutation a queue item replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Record holds the system fields shared by every stored entity. Domain
// types embed it so the fields flatten into the same JSON object.
type Record struct {
	ID          string     `json:"id"`
	Version     int64      `json:"version"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeviceID    string     `json:"deviceId"`
	CollectorID string     `json:"collectorId"`
}

// systemFields are the JSON keys owned by Record. They are never taken from
// caller-supplied partial updates.
var systemFields = map[string]struct{}{
	"id":          {},
	"version":     {},
	"syncStatus":  {},
	"createdAt":   {},
	"updatedAt":   {},
	"deviceId":    {},
	"collectorId": {},
}

// IsSystemField reports whether key is managed by the store.
func IsSystemField(key string) bool {
	_, ok := systemFields[key]
	return ok
}

// Document is a record together with its domain fields, which the sync
// core treats as opaque. It marshals as one flat JSON object.
type Document struct {
	Record
	Fields map[string]any
}

// NewDocument returns a document carrying the given domain fields.
func NewDocument(fields map[string]any) *Document {
	return &Document{Fields: fields}
}

// Clone returns a copy with its own top-level field map.
func (d *Document) Clone() *Document {
	out := &Document{Record: d.Record}
	if d.Fields != nil {
		out.Fields = maps.Clone(d.Fields)
	}
	return out
}

// MarshalJSON flattens the system and domain fields into one object.
func (d Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Fields)+len(systemFields))
	for k, v := range d.Fields {
		if !IsSystemField(k) {
			m[k] = v
		}
	}
	m["id"] = d.ID
	m["version"] = d.Version
	m["syncStatus"] = d.SyncStatus
	m["createdAt"] = d.CreatedAt
	m["updatedAt"] = d.UpdatedAt
	m["deviceId"] = d.DeviceID
	m["collectorId"] = d.CollectorID
	return json.Marshal(m)
}

// UnmarshalJSON splits a flat object into system and domain fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &d.Record); err != nil {
		return fmt.Errorf("decode record fields: %w", err)
	}
	m, err := decodeFields(data)
	if err != nil {
		return err
	}
	for k := range systemFields {
		delete(m, k)
	}
	d.Fields = m
	return nil
}

// decodeFields decodes a JSON object keeping numbers as json.Number, so
// domain values pass through the store byte for byte.
func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// QueueItem is one pending, replayed or failed mutation in the sync queue.
type QueueItem struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	ObjectStore   string          `json:"objectStore"`
	RecordID      string          `json:"recordId"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SyncStatus    SyncStatus      `json:"syncStatus"`
	RetryCount    int             `json:"retryCount"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	NextAttemptAt time.Time       `json:"nextAttemptAt,omitzero"`
	SyncedAt      time.Time       `json:"syncedAt,omitzero"`
}

// QueueCounts aggregates queue items by status.
type QueueCounts struct {
	Total   int64 `json:"totalItems"`
	Pending int64 `json:"pendingItems"`
	Synced  int64 `json:"syncedItems"`
	Failed  int64 `json:"failedItems"`
}

// QueueFilter narrows QueueItems. Zero values match everything.
type QueueFilter struct {
	Statuses   []SyncStatus
	Collection string
	RecordID   string
	Limit      int
}
