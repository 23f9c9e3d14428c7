package api

import (
	"context"
	"database/sql"
	"log"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/store"
)

// audit writes a structured audit log entry for a customer-affecting
// action, independent of whichever transaction performed the action
// itself — a failed audit write is logged but never fails the request,
// since the action it describes has already committed.
func audit(ctx context.Context, db *store.DB, customerID, action, detail string) {
	entry := &store.AuditLogEntry{
		ID:         uuid.NewString(),
		CustomerID: sql.NullString{String: customerID, Valid: customerID != ""},
		Actor:      "api",
		Action:     action,
		Detail:     sql.NullString{String: detail, Valid: detail != ""},
	}
	if err := store.CreateAuditLogEntry(ctx, db, entry); err != nil {
		log.Printf("[API] action=audit_write_fail customer=%s audit_action=%s error=%v", customerID, action, err)
	}
}
