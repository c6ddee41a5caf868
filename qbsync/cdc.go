package qbsync

import (
	"context"
	"encoding/json"
	"time"
)

type ChangeKind string

const (
	ChangeKindUpsert ChangeKind = "upsert"
	ChangeKindDelete ChangeKind = "delete"
)

// ChangeEvent is one entity-level change extracted from a CDC response.
// For deletions Raw is the deletion stub as received, not a full entity.
type ChangeEvent struct {
	Kind            ChangeKind
	QbId            string
	Raw             json.RawMessage
	RemoteDeletedAt *time.Time
}

// ChangeSet groups the extracted events by entity type. Iteration must use
// the registry order, not map order, so apply runs parents before children.
type ChangeSet struct {
	ChangedSince time.Time
	Events       map[string][]ChangeEvent
}

func (cs *ChangeSet) Total() int {
	n := 0
	for _, evs := range cs.Events {
		n += len(evs)
	}
	return n
}

// FetchChanges issues one CDC call covering all requested types and
// extracts the per-type change events.
func (c *Client) FetchChanges(ctx context.Context, realmID string, entityTypes []string, changedSince time.Time) (*ChangeSet, error) {
	body, err := c.CDC(ctx, realmID, entityTypes, changedSince)
	if err != nil {
		return nil, err
	}
	events, err := ParseCDCBody(body, entityTypes)
	if err != nil {
		return nil, err
	}
	return &ChangeSet{ChangedSince: changedSince, Events: events}, nil
}

// cdcEnvelope mirrors the doubly nested CDC response body:
// CDCResponse → QueryResponse → {EntityType: [...], startPosition, ...}.
// The inner objects are kept raw because their keys are entity type names.
type cdcEnvelope struct {
	CDCResponse []struct {
		QueryResponse []map[string]json.RawMessage `json:"QueryResponse"`
	} `json:"CDCResponse"`
	Time string `json:"time"`
}

// ParseCDCBody extracts per-type change events from a raw CDC response.
// Both deletion conventions QuickBooks uses are honored: records carrying
// an inline `"status": "Deleted"` marker inside the type's own array, and
// sibling `Deleted<Type>` arrays. Missing blocks mean no changes for that
// type, never an error.
func ParseCDCBody(body []byte, entityTypes []string) (map[string][]ChangeEvent, error) {
	var envelope cdcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	out := make(map[string][]ChangeEvent, len(entityTypes))
	for _, block := range envelope.CDCResponse {
		for _, qr := range block.QueryResponse {
			for _, entityType := range entityTypes {
				if raw, ok := qr[entityType]; ok {
					events, err := extractEntityArray(raw)
					if err != nil {
						return nil, err
					}
					out[entityType] = append(out[entityType], events...)
				}
				if raw, ok := qr["Deleted"+entityType]; ok {
					events, err := extractDeletedArray(raw)
					if err != nil {
						return nil, err
					}
					out[entityType] = append(out[entityType], events...)
				}
			}
		}
	}
	return out, nil
}

// extractEntityArray classifies each element of a type's own array. The
// inline status marker wins over everything else in the record.
func extractEntityArray(raw json.RawMessage) ([]ChangeEvent, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	events := make([]ChangeEvent, 0, len(items))
	for _, item := range items {
		var header qbEntityHeader
		if err := json.Unmarshal(item, &header); err != nil {
			return nil, err
		}
		ev := ChangeEvent{QbId: header.Id, Raw: item}
		if header.Status == "Deleted" {
			ev.Kind = ChangeKindDelete
			if header.MetaData != nil {
				ev.RemoteDeletedAt = parseQBTime(header.MetaData.LastUpdatedTime)
			}
		} else {
			ev.Kind = ChangeKindUpsert
		}
		events = append(events, ev)
	}
	return events, nil
}

func extractDeletedArray(raw json.RawMessage) ([]ChangeEvent, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	events := make([]ChangeEvent, 0, len(items))
	for _, item := range items {
		var header qbEntityHeader
		if err := json.Unmarshal(item, &header); err != nil {
			return nil, err
		}
		ev := ChangeEvent{Kind: ChangeKindDelete, QbId: header.Id, Raw: item}
		if header.MetaData != nil {
			ev.RemoteDeletedAt = parseQBTime(header.MetaData.LastUpdatedTime)
		}
		events = append(events, ev)
	}
	return events, nil
}
