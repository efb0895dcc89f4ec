package client

import (
	"context"
	"encoding/json"
	"fmt"

	"brkdash/internal/configdoc/model"
)

// The mutators below are read-modify-write round trips: load the whole
// company document, change one element of a collection by id, save the
// whole document. Concurrent writers are not detected; the last save wins.
// Top-level fields and sibling elements are carried over as raw JSON.

func (c *Client) UpdateMachine(ctx context.Context, m model.Machine) error {
	return c.replaceEntity(ctx, model.CollectionMachines, "machine", m.ID, m)
}

func (c *Client) AddMachine(ctx context.Context, m model.Machine) error {
	return c.appendEntity(ctx, model.CollectionMachines, "machine", m.ID, m)
}

// DeleteMachine removes the machine with id. A missing id is not an error.
func (c *Client) DeleteMachine(ctx context.Context, id string) error {
	return c.removeEntity(ctx, model.CollectionMachines, id)
}

func (c *Client) UpdateCycle(ctx context.Context, cy model.Cycle) error {
	return c.replaceEntity(ctx, model.CollectionCycles, "cycle", cy.ID, cy)
}

func (c *Client) UpdateToolCategory(ctx context.Context, tc model.ToolCategory) error {
	return c.replaceEntity(ctx, model.CollectionToolCategories, "tool category", tc.ID, tc)
}

func (c *Client) UpdateValidationRule(ctx context.Context, r model.ValidationRule) error {
	return c.replaceEntity(ctx, model.CollectionValidationRules, "validation rule", r.ID, r)
}

func (c *Client) AddValidationRule(ctx context.Context, r model.ValidationRule) error {
	return c.appendEntity(ctx, model.CollectionValidationRules, "validation rule", r.ID, r)
}

// DeleteValidationRule removes the rule with id. A missing id is not an error.
func (c *Client) DeleteValidationRule(ctx context.Context, id string) error {
	return c.removeEntity(ctx, model.CollectionValidationRules, id)
}

func (c *Client) replaceEntity(ctx context.Context, collection, kind, id string, entity any) error {
	if id == "" {
		return fmt.Errorf("%w: %s has no id", model.ErrInvalidRequest, kind)
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}
	_, err = c.mutateCollection(ctx, collection, func(items []json.RawMessage) ([]json.RawMessage, error) {
		i := findByID(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
		}
		items[i] = raw
		return items, nil
	})
	return err
}

func (c *Client) appendEntity(ctx context.Context, collection, kind, id string, entity any) error {
	if id == "" {
		return fmt.Errorf("%w: %s has no id", model.ErrInvalidRequest, kind)
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}
	_, err = c.mutateCollection(ctx, collection, func(items []json.RawMessage) ([]json.RawMessage, error) {
		if findByID(items, id) >= 0 {
			return nil, fmt.Errorf("%w: %s %q", model.ErrAlreadyExists, kind, id)
		}
		return append(items, raw), nil
	})
	return err
}

func (c *Client) removeEntity(ctx context.Context, collection, id string) error {
	_, err := c.mutateCollection(ctx, collection, func(items []json.RawMessage) ([]json.RawMessage, error) {
		i := findByID(items, id)
		if i < 0 {
			return nil, nil
		}
		return append(items[:i], items[i+1:]...), nil
	})
	return err
}

// mutateCollection loads the company document, applies fn to one collection
// and saves the result. fn returning a nil slice and nil error means there
// is nothing to change and the save is skipped.
func (c *Client) mutateCollection(ctx context.Context, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) (*model.SaveResponse, error) {
	raw, err := c.LoadCompanyConfigRaw(ctx)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: company config is not a JSON object", model.ErrReadFailure)
	}

	items := []json.RawMessage{}
	if v, ok := doc[collection]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &items); err != nil {
			return nil, fmt.Errorf("%w: %s is not an array", model.ErrReadFailure, collection)
		}
	}

	items, err = fn(items)
	if err != nil {
		return nil, err
	}
	if items == nil {
		return nil, nil
	}

	if doc[collection], err = json.Marshal(items); err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", collection, err)
	}
	return c.SaveCompanyConfig(ctx, doc)
}

func findByID(items []json.RawMessage, id string) int {
	for i, item := range items {
		var probe struct {
			ID any `json:"id"`
		}
		if json.Unmarshal(item, &probe) != nil {
			continue
		}
		if s, ok := probe.ID.(string); ok && s == id {
			return i
		}
	}
	return -1
}
