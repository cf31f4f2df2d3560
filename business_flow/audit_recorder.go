package businessflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// AuditEntry is one state change to record
type AuditEntry struct {
	Action      string
	EntityType  string
	EntityID    string
	Before      any
	After       any
	Description string
	// Error marks a failed action; nil means success
	Error    *string
	Metadata *ClientMetadata
}

// AuditRecorder is the single funnel for audit writes
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) (*models.AuditLog, error)
}

// AuditRecorderImpl implements AuditRecorder
type AuditRecorderImpl struct {
	auditRepo repository.AuditLogRepository
}

func NewAuditRecorder(auditRepo repository.AuditLogRepository) AuditRecorder {
	return &AuditRecorderImpl{auditRepo: auditRepo}
}

func (r *AuditRecorderImpl) Record(ctx context.Context, entry AuditEntry) (*models.AuditLog, error) {
	before, err := SnapshotJSON(entry.Before)
	if err != nil {
		return nil, NewBusinessError("AUDIT_SNAPSHOT_FAILED", "Failed to serialize before snapshot", err)
	}
	after, err := SnapshotJSON(entry.After)
	if err != nil {
		return nil, NewBusinessError("AUDIT_SNAPSHOT_FAILED", "Failed to serialize after snapshot", err)
	}

	audit := &models.AuditLog{
		Action:       entry.Action,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Before:       before,
		After:        after,
		ActorAdminID: actorID(entry.Metadata),
		Success:      utils.ToPtr(entry.Error == nil),
		ErrorMessage: entry.Error,
	}
	if entry.Description != "" {
		audit.Description = utils.ToPtr(entry.Description)
	}
	if entry.Metadata != nil {
		if entry.Metadata.IPAddress != "" {
			audit.IPAddress = utils.ToPtr(entry.Metadata.IPAddress)
		}
		if entry.Metadata.UserAgent != "" {
			audit.UserAgent = utils.ToPtr(entry.Metadata.UserAgent)
		}
		if entry.Metadata.RequestID != "" {
			audit.RequestID = utils.ToPtr(entry.Metadata.RequestID)
		}
	}

	// Extract request ID from context if available
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if err := r.auditRepo.Save(ctx, audit); err != nil {
		return nil, NewBusinessError("AUDIT_WRITE_FAILED", "Failed to write audit log", err)
	}
	return audit, nil
}

// SnapshotJSON deep-converts v into JSON, rewriting every date-like string as UTC ISO-8601 with milliseconds
func SnapshotJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc == nil {
		return nil, nil
	}

	out, err := json.Marshal(normalizeDates(doc))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return out, nil
}

func normalizeDates(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeDates(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = normalizeDates(x)
		}
		return t
	case string:
		if ts, ok := parseDateLike(t); ok {
			return utils.ToISO(ts)
		}
	}
	return v
}

// RFC3339 is at least 20 chars ("2006-01-02T15:04:05Z")
func parseDateLike(s string) (time.Time, bool) {
	if len(s) < 20 || len(s) > 40 || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
