package cypher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/orneryd/grafito/apoc/load"
	"github.com/orneryd/grafito/pkg/storage"
)

// Procedure is one CALL-able routine. Its return schema is fixed: YIELD
// may project a subset of Columns, and an unknown column is a ParseError.
type Procedure struct {
	Name    string
	Columns []string
	Call    func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error)
}

// ProcedureRegistry resolves procedures by name. Procedures can be added
// or replaced but not removed, and the registry is safe for concurrent use.
type ProcedureRegistry struct {
	mu    sync.RWMutex
	procs map[string]*Procedure
}

// NewProcedureRegistry builds a registry preloaded with the built-in
// procedures. Database-level procedures (vector search) are registered on
// top by the embedding layer.
func NewProcedureRegistry() *ProcedureRegistry {
	r := &ProcedureRegistry{procs: map[string]*Procedure{}}
	r.Register(procDbStats())
	r.Register(procURIIndexCreate())
	r.Register(procFulltextSearch())
	r.Register(procFulltextSearchRelationships())
	r.Register(procLoadJSON("apoc.load.json"))
	r.Register(procLoadJSON("apoc.load.jsonArray"))
	r.Register(procLoadJSONParams())
	r.Register(procLoadXML("apoc.load.xml"))
	r.Register(procLoadXMLParams())
	r.Register(procLoadHTML())
	r.Register(procImportJSON())
	return r
}

// Register installs a procedure; later registrations replace earlier ones
// of the same name.
func (r *ProcedureRegistry) Register(proc *Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[strings.ToLower(proc.Name)] = proc
}

// Get resolves a procedure by case-insensitive name.
func (r *ProcedureRegistry) Get(name string) (*Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proc, ok := r.procs[strings.ToLower(name)]
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("unknown procedure %q", name)}
	}
	return proc, nil
}

// Names lists the registered procedure names, sorted.
func (r *ProcedureRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.procs))
	for _, proc := range r.procs {
		out = append(out, proc.Name)
	}
	sort.Strings(out)
	return out
}

// --- built-in procedures ---

func procDbStats() *Procedure {
	return &Procedure{
		Name:    "db.stats",
		Columns: []string{"nodes", "relationships", "labels"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			nodes, rels, err := ex.sess.Counts(ctx)
			if err != nil {
				return nil, err
			}
			histogram, err := ex.sess.LabelHistogram(ctx)
			if err != nil {
				return nil, err
			}
			labels := map[string]any{}
			for name, count := range histogram {
				labels[name] = count
			}
			return []map[string]any{{
				"nodes": nodes, "relationships": rels, "labels": labels,
			}}, nil
		},
	}
}

func procURIIndexCreate() *Procedure {
	return &Procedure{
		Name:    "db.uri_index.create",
		Columns: []string{"kind", "created"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			kind := "node"
			if len(args) > 0 {
				s, ok := args[0].(string)
				if !ok {
					return nil, &ConfigurationError{Msg: "db.uri_index.create expects a kind string"}
				}
				kind = strings.ToLower(s)
			}
			if err := ex.sess.CreateURIIndex(ctx, storage.EntityKind(kind)); err != nil {
				return nil, err
			}
			return []map[string]any{{"kind": kind, "created": true}}, nil
		},
	}
}

// fulltextArgs parses the shared (query, k?, options?) argument shape of
// the fulltext procedures. Recognized options: labels (node search),
// type (relationship search), properties.
func fulltextArgs(ex *Executor, name string, args []any) (string, int, storage.FulltextFilter, error) {
	var filter storage.FulltextFilter
	if len(args) < 1 {
		return "", 0, filter, &ConfigurationError{Msg: name + " expects (query, k?, options?)"}
	}
	query, ok := args[0].(string)
	if !ok {
		return "", 0, filter, &ConfigurationError{Msg: name + " query must be a string"}
	}
	k := ex.cfg.DefaultTopK
	if len(args) > 1 && args[1] != nil {
		n, ok := isInteger(args[1])
		if !ok || n <= 0 {
			return "", 0, filter, &ConfigurationError{Msg: name + " k must be a positive integer"}
		}
		k = int(n)
	}
	if len(args) > 2 && args[2] != nil {
		m, ok := args[2].(map[string]any)
		if !ok {
			return "", 0, filter, &ConfigurationError{Msg: name + " options must be a map"}
		}
		for key, raw := range m {
			switch strings.ToLower(key) {
			case "labels":
				list, ok := raw.([]any)
				if !ok {
					return "", 0, filter, &ConfigurationError{Msg: "option labels must be a list"}
				}
				for _, item := range list {
					label, ok := item.(string)
					if !ok {
						return "", 0, filter, &ConfigurationError{Msg: "option labels must contain strings"}
					}
					filter.Labels = append(filter.Labels, label)
				}
			case "type":
				relType, ok := raw.(string)
				if !ok {
					return "", 0, filter, &ConfigurationError{Msg: "option type must be a string"}
				}
				filter.Type = relType
			case "properties":
				props, ok := raw.(map[string]any)
				if !ok {
					return "", 0, filter, &ConfigurationError{Msg: "option properties must be a map"}
				}
				filter.Properties = props
			default:
				return "", 0, filter, &ConfigurationError{Msg: fmt.Sprintf("unknown fulltext option %q", key)}
			}
		}
	}
	return query, k, filter, nil
}

func procFulltextSearch() *Procedure {
	return &Procedure{
		Name:    "db.fulltext.search",
		Columns: []string{"node", "score"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			query, k, filter, err := fulltextArgs(ex, "db.fulltext.search", args)
			if err != nil {
				return nil, err
			}
			if filter.Type != "" {
				return nil, &ConfigurationError{Msg: "db.fulltext.search filters nodes; use db.fulltext.searchRelationships for a type filter"}
			}
			hits, err := ex.sess.SearchFulltext(ctx, query, k, storage.EntityNode, filter)
			if err != nil {
				return nil, err
			}
			var rows []map[string]any
			for _, hit := range hits {
				node, err := ex.nodeByID(ctx, storage.NodeID(hit.ID))
				if err != nil {
					return nil, err
				}
				if node == nil {
					continue
				}
				rows = append(rows, map[string]any{"node": node, "score": hit.Score})
			}
			return rows, nil
		},
	}
}

func procFulltextSearchRelationships() *Procedure {
	return &Procedure{
		Name:    "db.fulltext.searchRelationships",
		Columns: []string{"relationship", "score"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			query, k, filter, err := fulltextArgs(ex, "db.fulltext.searchRelationships", args)
			if err != nil {
				return nil, err
			}
			if len(filter.Labels) > 0 {
				return nil, &ConfigurationError{Msg: "db.fulltext.searchRelationships filters by type, not labels"}
			}
			hits, err := ex.sess.SearchFulltext(ctx, query, k, storage.EntityRelationship, filter)
			if err != nil {
				return nil, err
			}
			var rows []map[string]any
			for _, hit := range hits {
				rel, err := ex.sess.GetRelationship(ctx, storage.RelID(hit.ID))
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if err != nil {
					return nil, err
				}
				rows = append(rows, map[string]any{"relationship": rel, "score": hit.Score})
			}
			return rows, nil
		},
	}
}

func loadArgs(args []any, withParams bool) (string, load.Options, error) {
	if len(args) < 1 {
		return "", load.Options{}, &ConfigurationError{Msg: "load procedures expect a source argument"}
	}
	source, ok := args[0].(string)
	if !ok {
		return "", load.Options{}, &ConfigurationError{Msg: "load source must be a string"}
	}
	opts := load.DefaultOptions()
	if withParams && len(args) > 1 && args[1] != nil {
		m, ok := args[1].(map[string]any)
		if !ok {
			return "", load.Options{}, &ConfigurationError{Msg: "load options must be a map"}
		}
		var err error
		opts, err = load.ParseOptions(m)
		if err != nil {
			return "", load.Options{}, &ConfigurationError{Msg: err.Error()}
		}
	}
	return source, opts, nil
}

func procLoadJSON(name string) *Procedure {
	arrayOnly := strings.HasSuffix(name, "jsonArray")
	return &Procedure{
		Name:    name,
		Columns: []string{"value"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, false)
			if err != nil {
				return nil, err
			}
			if arrayOnly {
				items, err := load.JSONArray(source, opts)
				if err != nil {
					return nil, &ImportError{Msg: err.Error()}
				}
				rows := make([]map[string]any, len(items))
				for i, item := range items {
					rows[i] = map[string]any{"value": item}
				}
				return rows, nil
			}
			v, err := load.JSON(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			// a top-level array streams one row per element
			if items, ok := v.([]any); ok {
				rows := make([]map[string]any, len(items))
				for i, item := range items {
					rows[i] = map[string]any{"value": item}
				}
				return rows, nil
			}
			return []map[string]any{{"value": v}}, nil
		},
	}
}

func procLoadJSONParams() *Procedure {
	return &Procedure{
		Name:    "apoc.load.jsonParams",
		Columns: []string{"value"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, true)
			if err != nil {
				return nil, err
			}
			v, err := load.JSON(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			if items, ok := v.([]any); ok {
				rows := make([]map[string]any, len(items))
				for i, item := range items {
					rows[i] = map[string]any{"value": item}
				}
				return rows, nil
			}
			return []map[string]any{{"value": v}}, nil
		},
	}
}

func procLoadXML(name string) *Procedure {
	return &Procedure{
		Name:    name,
		Columns: []string{"value"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, false)
			if err != nil {
				return nil, err
			}
			v, err := load.XML(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			return []map[string]any{{"value": v}}, nil
		},
	}
}

func procLoadXMLParams() *Procedure {
	return &Procedure{
		Name:    "apoc.load.xmlParams",
		Columns: []string{"value"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, true)
			if err != nil {
				return nil, err
			}
			v, err := load.XML(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			return []map[string]any{{"value": v}}, nil
		},
	}
}

func procLoadHTML() *Procedure {
	return &Procedure{
		Name:    "apoc.load.html",
		Columns: []string{"value"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, true)
			if err != nil {
				return nil, err
			}
			v, err := load.HTML(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			return []map[string]any{{"value": normalizeValue(map[string]any(v))}}, nil
		},
	}
}

// procImportJSON materializes nodes and relationships from JSON, JSONL,
// an array of entries, or a {nodes, relationships} document. Entry shape:
//
//	{"type": "node", "id": "n1", "labels": ["Person"], "properties": {...}}
//	{"type": "relationship", "label": "KNOWS", "start": {"id": "n1"},
//	 "end": {"id": "n2"}, "properties": {...}}
//
// Relationships may only reference ids declared earlier in the same
// import; an unresolved reference fails the import.
func procImportJSON() *Procedure {
	return &Procedure{
		Name:    "apoc.import.json",
		Columns: []string{"nodes", "relationships"},
		Call: func(ctx context.Context, ex *Executor, args []any) ([]map[string]any, error) {
			source, opts, err := loadArgs(args, true)
			if err != nil {
				return nil, err
			}
			doc, err := load.JSON(source, opts)
			if err != nil {
				return nil, &ImportError{Msg: err.Error()}
			}
			entries, err := importEntries(doc)
			if err != nil {
				return nil, err
			}
			idMap := map[string]storage.NodeID{}
			nodesCreated, relsCreated := 0, 0
			for _, entry := range entries {
				kind, _ := entry["type"].(string)
				switch kind {
				case "node":
					id, labels, props, err := importNodeEntry(entry)
					if err != nil {
						return nil, err
					}
					node, err := ex.sess.CreateNode(ctx, labels, props)
					if err != nil {
						return nil, err
					}
					if id != "" {
						idMap[id] = node.ID
					}
					nodesCreated++
				case "relationship":
					relType, startRef, endRef, props, err := importRelEntry(entry)
					if err != nil {
						return nil, err
					}
					src, ok := idMap[startRef]
					if !ok {
						return nil, &ImportError{Msg: fmt.Sprintf("relationship references undeclared node id %q", startRef)}
					}
					tgt, ok := idMap[endRef]
					if !ok {
						return nil, &ImportError{Msg: fmt.Sprintf("relationship references undeclared node id %q", endRef)}
					}
					if _, err := ex.sess.CreateRelationship(ctx, src, tgt, relType, props); err != nil {
						return nil, err
					}
					relsCreated++
				default:
					return nil, &ImportError{Msg: fmt.Sprintf("entry has unknown type %q", kind)}
				}
			}
			return []map[string]any{{
				"nodes": int64(nodesCreated), "relationships": int64(relsCreated),
			}}, nil
		},
	}
}

// importEntries normalizes the accepted document shapes into a flat entry
// list. A {nodes, relationships} document yields its nodes first; an entry
// list keeps its given order.
func importEntries(doc any) ([]map[string]any, error) {
	switch v := doc.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, &ImportError{Msg: "import entries must be objects"}
			}
			out = append(out, entry)
		}
		return out, nil
	case map[string]any:
		if _, hasType := v["type"]; hasType {
			return []map[string]any{v}, nil
		}
		nodesRaw, hasNodes := v["nodes"]
		relsRaw, hasRels := v["relationships"]
		if !hasNodes && !hasRels {
			return nil, &ImportError{Msg: "import document must be an entry list or {nodes, relationships}"}
		}
		var out []map[string]any
		if hasNodes {
			nodes, ok := nodesRaw.([]any)
			if !ok {
				return nil, &ImportError{Msg: "nodes must be a list"}
			}
			for _, item := range nodes {
				entry, ok := item.(map[string]any)
				if !ok {
					return nil, &ImportError{Msg: "node entries must be objects"}
				}
				if _, hasType := entry["type"]; !hasType {
					entry["type"] = "node"
				}
				out = append(out, entry)
			}
		}
		if hasRels {
			rels, ok := relsRaw.([]any)
			if !ok {
				return nil, &ImportError{Msg: "relationships must be a list"}
			}
			for _, item := range rels {
				entry, ok := item.(map[string]any)
				if !ok {
					return nil, &ImportError{Msg: "relationship entries must be objects"}
				}
				if _, hasType := entry["type"]; !hasType {
					entry["type"] = "relationship"
				}
				out = append(out, entry)
			}
		}
		return out, nil
	default:
		return nil, &ImportError{Msg: "import document must be a list or object"}
	}
}

func importNodeEntry(entry map[string]any) (string, []string, map[string]any, error) {
	id := ""
	switch v := entry["id"].(type) {
	case string:
		id = v
	case int64:
		id = fmt.Sprint(v)
	case float64:
		id = fmt.Sprint(int64(v))
	}
	var labels []string
	if raw, ok := entry["labels"].([]any); ok {
		for _, l := range raw {
			s, ok := l.(string)
			if !ok {
				return "", nil, nil, &ImportError{Msg: "node labels must be strings"}
			}
			labels = append(labels, s)
		}
	}
	props := map[string]any{}
	if raw, ok := entry["properties"].(map[string]any); ok {
		props = raw
	}
	return id, labels, props, nil
}

func importRelEntry(entry map[string]any) (string, string, string, map[string]any, error) {
	relType, _ := entry["label"].(string)
	if relType == "" {
		relType, _ = entry["relType"].(string)
	}
	if relType == "" {
		return "", "", "", nil, &ImportError{Msg: "relationship entry requires a label"}
	}
	ref := func(key string) string {
		switch v := entry[key].(type) {
		case string:
			return v
		case int64:
			return fmt.Sprint(v)
		case float64:
			return fmt.Sprint(int64(v))
		case map[string]any:
			switch id := v["id"].(type) {
			case string:
				return id
			case int64:
				return fmt.Sprint(id)
			case float64:
				return fmt.Sprint(int64(id))
			}
		}
		return ""
	}
	start := ref("start")
	end := ref("end")
	if start == "" || end == "" {
		return "", "", "", nil, &ImportError{Msg: "relationship entry requires start and end node references"}
	}
	props := map[string]any{}
	if raw, ok := entry["properties"].(map[string]any); ok {
		props = raw
	}
	return relType, start, end, props, nil
}
