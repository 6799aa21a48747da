package storage

import (
	"context"
	"fmt"
)

// Write-time constraint enforcement. The graph primitives call
// validateNodeWrite / validateRelWrite with the entity's post-write label
// set and property map before the mutation lands; any violation aborts the
// enclosing transaction.

func typeOf(v any) string {
	switch v.(type) {
	case string:
		return "STRING"
	case int64:
		return "INTEGER"
	case float64:
		return "FLOAT"
	case bool:
		return "BOOLEAN"
	case []any:
		return "LIST"
	case map[string]any:
		return "MAP"
	default:
		return ""
	}
}

func (s *Session) validateNodeWrite(ctx context.Context, exclude NodeID, labels []string, props map[string]any) error {
	for _, c := range s.eng.registry.constraintsFor(EntityNode, labels) {
		if err := s.validateOne(ctx, c, exclude, props); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) validateRelWrite(ctx context.Context, exclude RelID, relType string, props map[string]any) error {
	for _, c := range s.eng.registry.constraintsFor(EntityRelationship, []string{relType}) {
		if err := s.validateOneRel(ctx, c, exclude, props); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) validateOne(ctx context.Context, c Constraint, exclude NodeID, props map[string]any) error {
	val, present := props[c.Property]
	switch c.Kind {
	case ConstraintExistence:
		if !present || val == nil {
			return &ConstraintViolationError{
				Constraint: c.Name, Kind: string(c.Kind),
				Detail: fmt.Sprintf("property %q must exist on :%s", c.Property, c.Label),
			}
		}
	case ConstraintType:
		if !present || val == nil || typeOf(val) != c.ValueType {
			return &ConstraintViolationError{
				Constraint: c.Name, Kind: string(c.Kind),
				Detail: fmt.Sprintf("property %q on :%s must be %s", c.Property, c.Label, c.ValueType),
			}
		}
	case ConstraintUniqueness:
		// NULL never participates in uniqueness.
		if !present || val == nil {
			return nil
		}
		dup, err := s.findNodeWithValue(ctx, c.Label, c.Property, val, exclude)
		if err != nil {
			return err
		}
		if dup {
			return &ConstraintViolationError{
				Constraint: c.Name, Kind: string(c.Kind),
				Detail: fmt.Sprintf("value %v for %q already exists on :%s", val, c.Property, c.Label),
			}
		}
	}
	return nil
}

func (s *Session) validateOneRel(ctx context.Context, c Constraint, exclude RelID, props map[string]any) error {
	val, present := props[c.Property]
	switch c.Kind {
	case ConstraintExistence:
		if !present || val == nil {
			return &ConstraintViolationError{
				Constraint: c.Name, Kind: string(c.Kind),
				Detail: fmt.Sprintf("property %q must exist on [:%s]", c.Property, c.Label),
			}
		}
	case ConstraintType:
		if !present || val == nil || typeOf(val) != c.ValueType {
			return &ConstraintViolationError{
				Constraint: c.Name, Kind: string(c.Kind),
				Detail: fmt.Sprintf("property %q on [:%s] must be %s", c.Property, c.Label, c.ValueType),
			}
		}
	case ConstraintUniqueness:
		if !present || val == nil {
			return nil
		}
		rels, err := s.MatchRelationships(ctx, nil, nil, c.Label)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.ID == exclude {
				continue
			}
			if PropertyEqual(r.Properties[c.Property], val) {
				return &ConstraintViolationError{
					Constraint: c.Name, Kind: string(c.Kind),
					Detail: fmt.Sprintf("value %v for %q already exists on [:%s]", val, c.Property, c.Label),
				}
			}
		}
	}
	return nil
}

// findNodeWithValue reports whether some node other than exclude carries
// the label with the given property value.
func (s *Session) findNodeWithValue(ctx context.Context, label, property string, val any, exclude NodeID) (bool, error) {
	nodes, err := s.MatchNodes(ctx, []string{label}, nil)
	if err != nil {
		return false, err
	}
	for _, n := range nodes {
		if n.ID == exclude {
			continue
		}
		if v, ok := n.Properties[property]; ok && PropertyEqual(v, val) {
			return true, nil
		}
	}
	return false, nil
}

// checkExistingUnique validates existing data before a unique index is
// created: any duplicate non-null value rejects the creation.
func (s *Session) checkExistingUnique(ctx context.Context, idx PropertyIndex) error {
	if idx.Entity != EntityNode {
		return s.checkExistingAgainst(ctx, Constraint{
			Name: idx.Name, Kind: ConstraintUniqueness,
			Entity: idx.Entity, Label: idx.Label, Property: idx.Property,
		})
	}
	nodes, err := s.MatchNodes(ctx, []string{idx.Label}, nil)
	if err != nil {
		return err
	}
	seen := make([]any, 0, len(nodes))
	for _, n := range nodes {
		v, ok := n.Properties[idx.Property]
		if !ok || v == nil {
			continue
		}
		for _, prev := range seen {
			if PropertyEqual(prev, v) {
				return &ConstraintViolationError{
					Constraint: idx.Name, Kind: string(ConstraintUniqueness),
					Detail: fmt.Sprintf("existing duplicate value %v for %q on :%s", v, idx.Property, idx.Label),
				}
			}
		}
		seen = append(seen, v)
	}
	return nil
}

// checkExistingAgainst validates existing data against a new constraint.
func (s *Session) checkExistingAgainst(ctx context.Context, c Constraint) error {
	if c.Entity == EntityNode {
		nodes, err := s.MatchNodes(ctx, []string{c.Label}, nil)
		if err != nil {
			return err
		}
		if c.Kind == ConstraintUniqueness {
			seen := make([]any, 0, len(nodes))
			for _, n := range nodes {
				v, ok := n.Properties[c.Property]
				if !ok || v == nil {
					continue
				}
				for _, prev := range seen {
					if PropertyEqual(prev, v) {
						return &ConstraintViolationError{
							Constraint: c.Name, Kind: string(c.Kind),
							Detail: fmt.Sprintf("existing duplicate value %v for %q on :%s", v, c.Property, c.Label),
						}
					}
				}
				seen = append(seen, v)
			}
			return nil
		}
		for _, n := range nodes {
			if err := s.validateOne(ctx, c, n.ID, n.Properties); err != nil {
				return err
			}
		}
		return nil
	}
	rels, err := s.MatchRelationships(ctx, nil, nil, c.Label)
	if err != nil {
		return err
	}
	if c.Kind == ConstraintUniqueness {
		seen := make([]any, 0, len(rels))
		for _, r := range rels {
			v, ok := r.Properties[c.Property]
			if !ok || v == nil {
				continue
			}
			for _, prev := range seen {
				if PropertyEqual(prev, v) {
					return &ConstraintViolationError{
						Constraint: c.Name, Kind: string(c.Kind),
						Detail: fmt.Sprintf("existing duplicate value %v for %q on [:%s]", v, c.Property, c.Label),
					}
				}
			}
			seen = append(seen, v)
		}
		return nil
	}
	for _, r := range rels {
		if err := s.validateOneRel(ctx, c, r.ID, r.Properties); err != nil {
			return err
		}
	}
	return nil
}

// PropertyEqual is deep value equality over the property value domain.
// Numeric values compare across int64/float64.
func PropertyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !PropertyEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !PropertyEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
