package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Vector index metadata and the optional stored-embedding rows. The ANN
// structures themselves live in pkg/search; this file is only their
// persistent registry.

// VectorIndexMeta describes one named ANN index.
type VectorIndexMeta struct {
	Name      string
	Dimension int
	Backend   string
	Method    string
	Options   map[string]any
}

// CreateVectorIndexMeta registers index metadata.
func (s *Session) CreateVectorIndexMeta(ctx context.Context, meta VectorIndexMeta) error {
	if err := s.check(); err != nil {
		return err
	}
	opts, err := json.Marshal(meta.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if meta.Method == "" {
		meta.Method = "flat"
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		_, err := s.q().ExecContext(ctx,
			`INSERT INTO vector_indexes(name, dimension, backend, method, options) VALUES (?,?,?,?,?)`,
			meta.Name, meta.Dimension, meta.Backend, meta.Method, string(opts))
		if err != nil {
			return fmt.Errorf("create vector index %q: %w", meta.Name, err)
		}
		return nil
	})
}

// DropVectorIndexMeta removes the metadata and any stored embeddings.
func (s *Session) DropVectorIndexMeta(ctx context.Context, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		res, err := s.q().ExecContext(ctx, `DELETE FROM vector_indexes WHERE name = ?`, name)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: vector index %q", ErrIndexUnknown, name)
		}
		return nil
	})
}

// GetVectorIndexMeta fetches one index's metadata.
func (s *Session) GetVectorIndexMeta(ctx context.Context, name string) (*VectorIndexMeta, error) {
	metas, err := s.ListVectorIndexMeta(ctx)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		if metas[i].Name == name {
			return &metas[i], nil
		}
	}
	return nil, fmt.Errorf("%w: vector index %q", ErrIndexUnknown, name)
}

// ListVectorIndexMeta lists all registered vector indexes.
func (s *Session) ListVectorIndexMeta(ctx context.Context) ([]VectorIndexMeta, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.q().QueryContext(ctx,
		`SELECT name, dimension, backend, method, options FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VectorIndexMeta
	for rows.Next() {
		var meta VectorIndexMeta
		var opts string
		if err := rows.Scan(&meta.Name, &meta.Dimension, &meta.Backend, &meta.Method, &opts); err != nil {
			return nil, err
		}
		if opts != "" {
			if err := json.Unmarshal([]byte(opts), &meta.Options); err != nil {
				return nil, fmt.Errorf("decode options for %q: %w", meta.Name, err)
			}
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// UpsertVectorEntry stores a node's embedding for an index that keeps
// store_embeddings on.
func (s *Session) UpsertVectorEntry(ctx context.Context, index string, id NodeID, vec []float32) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		_, err := s.q().ExecContext(ctx,
			`INSERT OR REPLACE INTO vector_entries(index_name, node_id, embedding) VALUES (?,?,?)`,
			index, int64(id), encodeVector(vec))
		return err
	})
}

// DeleteVectorEntry removes a stored embedding.
func (s *Session) DeleteVectorEntry(ctx context.Context, index string, id NodeID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		_, err := s.q().ExecContext(ctx,
			`DELETE FROM vector_entries WHERE index_name = ? AND node_id = ?`, index, int64(id))
		return err
	})
}

// VectorEntries returns every stored embedding for the index.
func (s *Session) VectorEntries(ctx context.Context, index string) (map[NodeID][]float32, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.q().QueryContext(ctx,
		`SELECT node_id, embedding FROM vector_entries WHERE index_name = ?`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[NodeID][]float32{}
	for rows.Next() {
		var id int64
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		vec, err := decodeVector(text)
		if err != nil {
			return nil, err
		}
		out[NodeID(id)] = vec
	}
	return out, rows.Err()
}

func encodeVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, f := range vec {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVector(text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "[")
	text = strings.TrimSuffix(text, "]")
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("decode vector: %w", err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
