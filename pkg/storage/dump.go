package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Dump writes the database as a self-describing Cypher script:
//
//  1. every node becomes a CREATE statement carrying its labels and
//     properties plus a synthetic _dump_id property,
//  2. every relationship becomes a MATCH … CREATE keyed by _dump_id,
//  3. a final MATCH (n) REMOVE n._dump_id cleans up.
//
// Restoring executes the script; identifiers are renumbered but labels,
// types and properties are preserved.
func (s *Session) Dump(ctx context.Context, w io.Writer) error {
	if err := s.check(); err != nil {
		return err
	}
	nodes, err := s.AllNodes(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		props := make(map[string]any, len(n.Properties)+1)
		for k, v := range n.Properties {
			props[k] = v
		}
		props["_dump_id"] = int64(n.ID)
		labelPart := ""
		if len(n.Labels) > 0 {
			labelPart = ":" + strings.Join(n.Labels, ":")
		}
		if _, err := fmt.Fprintf(w, "CREATE (n%s %s);\n", labelPart, cypherMapLiteral(props)); err != nil {
			return err
		}
	}
	rels, err := s.AllRelationships(ctx)
	if err != nil {
		return err
	}
	for _, r := range rels {
		stmt := fmt.Sprintf(
			"MATCH (a {_dump_id: %d}), (b {_dump_id: %d}) CREATE (a)-[:%s",
			int64(r.Source), int64(r.Target), r.Type)
		if len(r.Properties) > 0 {
			stmt += " " + cypherMapLiteral(r.Properties)
		}
		stmt += "]->(b);\n"
		if _, err := io.WriteString(w, stmt); err != nil {
			return err
		}
	}
	if len(nodes) > 0 {
		if _, err := io.WriteString(w, "MATCH (n) REMOVE n._dump_id;\n"); err != nil {
			return err
		}
	}
	return nil
}

// Clear deletes every node (relationships cascade) but keeps schema
// metadata and fulltext configuration.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		if _, err := s.q().ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		return nil
	})
}

// cypherMapLiteral renders a property map as a Cypher map literal with
// sorted keys. Temporal and spatial values render as their constructor
// calls so the script round-trips typed values.
func cypherMapLiteral(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, cypherIdentifier(k)+": "+CypherLiteral(props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func cypherIdentifier(name string) string {
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(i > 0 && c >= '0' && c <= '9')
		if !ok {
			return "`" + strings.ReplaceAll(name, "`", "``") + "`"
		}
	}
	return name
}

// CypherLiteral renders one property value as Cypher source text.
func CypherLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return "'" + strings.NewReplacer("\\", "\\\\", "'", "\\'").Replace(val) + "'"
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = CypherLiteral(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		return cypherMapLiteral(val)
	case Date:
		return "date('" + val.String() + "')"
	case LocalTime:
		return "localtime('" + val.String() + "')"
	case ZonedTime:
		return "time('" + val.String() + "')"
	case LocalDateTime:
		return "localdatetime('" + val.String() + "')"
	case DateTime:
		return "datetime('" + val.String() + "')"
	case Duration:
		return "duration('" + val.String() + "')"
	case Point:
		if val.SRID == SRIDGeographic {
			return fmt.Sprintf("point({longitude: %g, latitude: %g})", val.X, val.Y)
		}
		return fmt.Sprintf("point({x: %g, y: %g})", val.X, val.Y)
	default:
		return "'" + fmt.Sprint(val) + "'"
	}
}
