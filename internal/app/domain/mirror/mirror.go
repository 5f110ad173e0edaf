// Package mirror defines the commitment status tracked on mirrored entities
// and the minimal projection submitted to the external append-only ledger.
package mirror

import "encoding/json"

// Status tracks whether an entity has been mirrored to the external ledger.
type Status string

const (
	// StatusPending is set in the same transaction as the primary write.
	// It is permanent if the single mirror attempt fails.
	StatusPending Status = "pending"
	// StatusCommitted means the ledger accepted the record; the entity
	// carries the returned transaction reference.
	StatusCommitted Status = "committed"
)

// RecordType tags a ledger record.
type RecordType string

const (
	RecordCreateUser RecordType = "create_user"
	RecordCreateRoom RecordType = "create_room"
	RecordCreateMeme RecordType = "create_meme"
	RecordCreateLike RecordType = "create_like"
	RecordDeleteLike RecordType = "delete_like"
)

// EntityKind names the table carrying the mirror status for a record.
type EntityKind string

const (
	EntityUser EntityKind = "user"
	EntityRoom EntityKind = "room"
	EntityMeme EntityKind = "meme"
	EntityLike EntityKind = "like"
	// EntityNone marks records with no row to write status back to
	// (delete_like: the row is already gone).
	EntityNone EntityKind = ""
)

// Record is one unit of work for the ledger mirror. Payload is the exact
// JSON blob submitted to the ledger.
type Record struct {
	Type    RecordType
	Entity  EntityKind
	ID      int64
	Payload json.RawMessage
}

// NewRecord serializes fields into a ledger record. The type tag is injected
// under the "type" key.
func NewRecord(t RecordType, entity EntityKind, id int64, fields map[string]interface{}) (Record, error) {
	body := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["type"] = string(t)

	payload, err := json.Marshal(body)
	if err != nil {
		return Record{}, err
	}
	return Record{Type: t, Entity: entity, ID: id, Payload: payload}, nil
}
