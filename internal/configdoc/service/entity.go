package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"brkdash/internal/audit"
	"brkdash/internal/configdoc/model"
	"brkdash/internal/events"
	"brkdash/pkg/logger"
)

const (
	actionAdded   = "added"
	actionUpdated = "updated"
	actionDeleted = "deleted"
)

// AddEntity appends entity to collection. The entity must carry a string id
// not yet used in that collection.
func (s *ConfigService) AddEntity(ctx context.Context, collection string, entity []byte) (model.EntityResult, error) {
	fields, err := decodeObject(entity)
	if err != nil {
		return model.EntityResult{}, err
	}
	id, err := entityID(fields)
	if err != nil {
		return model.EntityResult{}, err
	}
	compact, err := compactJSON(entity)
	if err != nil {
		return model.EntityResult{}, err
	}

	return s.mutateCollection(ctx, collection, id, actionAdded, func(items []json.RawMessage) ([]json.RawMessage, error) {
		if indexOf(items, id) >= 0 {
			return nil, fmt.Errorf("%w: %s %q", model.ErrAlreadyExists, collection, id)
		}
		return append(items, compact), nil
	})
}

// UpdateEntity replaces the element of collection whose id is id. An entity
// without an id takes the one from the path; a different id is rejected.
func (s *ConfigService) UpdateEntity(ctx context.Context, collection, id string, entity []byte) (model.EntityResult, error) {
	if id == "" {
		return model.EntityResult{}, fmt.Errorf("%w: missing id", model.ErrInvalidRequest)
	}
	fields, err := decodeObject(entity)
	if err != nil {
		return model.EntityResult{}, err
	}

	var replacement json.RawMessage
	if _, ok := fields["id"]; ok {
		bodyID, err := entityID(fields)
		if err != nil {
			return model.EntityResult{}, err
		}
		if bodyID != id {
			return model.EntityResult{}, fmt.Errorf("%w: body id %q does not match %q", model.ErrInvalidRequest, bodyID, id)
		}
		if replacement, err = compactJSON(entity); err != nil {
			return model.EntityResult{}, err
		}
	} else {
		fields["id"], _ = json.Marshal(id)
		if replacement, err = json.Marshal(fields); err != nil {
			return model.EntityResult{}, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
		}
	}

	return s.mutateCollection(ctx, collection, id, actionUpdated, func(items []json.RawMessage) ([]json.RawMessage, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, collection, id)
		}
		items[i] = replacement
		return items, nil
	})
}

// DeleteEntity removes the element of collection whose id is id.
func (s *ConfigService) DeleteEntity(ctx context.Context, collection, id string) (model.EntityResult, error) {
	if id == "" {
		return model.EntityResult{}, fmt.Errorf("%w: missing id", model.ErrInvalidRequest)
	}
	return s.mutateCollection(ctx, collection, id, actionDeleted, func(items []json.RawMessage) ([]json.RawMessage, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, collection, id)
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// mutateCollection runs a read-modify-write of one collection under the
// company lock and saves through the usual backup-then-write path. Fields
// the service does not know about are carried over unchanged.
func (s *ConfigService) mutateCollection(ctx context.Context, collection, id, action string, apply func([]json.RawMessage) ([]json.RawMessage, error)) (model.EntityResult, error) {
	if !model.IsCollection(collection) {
		return model.EntityResult{}, fmt.Errorf("%w: unknown collection %q", model.ErrNotFound, collection)
	}

	unlock := s.lock(model.Company)
	res, backup, err := s.mutateLocked(collection, apply)
	unlock()

	s.afterBackup(ctx, model.Company, backup)
	if err != nil {
		return model.EntityResult{}, err
	}

	logger.Sugar.Infof("Company config %s %q %s", collection, id, action)
	s.publish(ctx, events.TopicEntityChanged, events.EntityChanged{
		Collection: collection, ID: id, Action: action, At: s.Now().UTC(),
	})
	s.record(ctx, entityOp(action), model.Company, collection+"/"+id)
	return model.EntityResult{ID: id, Path: res.Path, Backup: res.Backup}, nil
}

func (s *ConfigService) mutateLocked(collection string, apply func([]json.RawMessage) ([]json.RawMessage, error)) (model.SaveResult, *model.BackupRecord, error) {
	data, err := s.load(model.Company)
	if err != nil {
		return model.SaveResult{}, nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return model.SaveResult{}, nil, fmt.Errorf("%w: company config is not a JSON object", model.ErrReadFailure)
	}

	var items []json.RawMessage
	if raw, ok := doc[collection]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &items); err != nil {
			return model.SaveResult{}, nil, fmt.Errorf("%w: %s is not an array", model.ErrReadFailure, collection)
		}
	}
	if items == nil {
		items = []json.RawMessage{}
	}

	items, err = apply(items)
	if err != nil {
		return model.SaveResult{}, nil, err
	}

	if doc[collection], err = json.Marshal(items); err != nil {
		return model.SaveResult{}, nil, fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return model.SaveResult{}, nil, fmt.Errorf("%w: %v", model.ErrWriteFailure, err)
	}
	return s.writeCompany(out)
}

func entityOp(action string) string {
	switch action {
	case actionAdded:
		return audit.OpEntityAdd
	case actionDeleted:
		return audit.OpEntityDelete
	default:
		return audit.OpEntityUpdate
	}
}

// entityID reads the mandatory string "id" of an entity.
func entityID(fields map[string]json.RawMessage) (string, error) {
	raw, ok := fields["id"]
	if !ok {
		return "", fmt.Errorf("%w: entity has no id", model.ErrInvalidRequest)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "", fmt.Errorf("%w: entity id must be a non-empty string", model.ErrInvalidRequest)
	}
	return id, nil
}

// indexOf finds the element whose "id" equals id. Elements without a string
// id never match.
func indexOf(items []json.RawMessage, id string) int {
	for i, item := range items {
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		if json.Unmarshal(item, &probe) != nil || probe.ID == nil {
			continue
		}
		var got string
		if json.Unmarshal(probe.ID, &got) == nil && got == id {
			return i
		}
	}
	return -1
}

func compactJSON(data []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return buf.Bytes(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

