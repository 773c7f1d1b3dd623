// Package events appends to the audit log that the API lists and the
// webhook dispatcher forwards.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	ContactCreated         = "contact.created"
	ContactValidated       = "contact.validated"
	ContactWebsiteResolved = "contact.website_resolved"
	UploadCreated          = "upload.created"
	UploadValidated        = "upload.validated"
	UploadRevalidated      = "upload.revalidated"
	ClientCreated          = "client.created"
)

// Entity kinds stored in events.entity_kind.
const (
	KindClient  = "client"
	KindUpload  = "upload"
	KindContact = "contact"
)

type EventPayload map[string]any

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append records an event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, clientID, entityKind, entityID string, payload EventPayload) error {
	if tx == nil {
		return errors.New("events: append needs a transaction")
	}
	if evtType == "" || entityKind == "" {
		return fmt.Errorf("events: type and entity kind are required (got %q, %q)", evtType, entityKind)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", evtType, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,client_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, optional(clientID), entityKind, optional(entityID), string(data))
	return err
}

func optional(v string) any {
	if v == "" {
		return nil
	}
	return v
}
