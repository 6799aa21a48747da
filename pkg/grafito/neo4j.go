package grafito

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/orneryd/grafito/pkg/storage"
)

// Neo4j dump import. The record parser is an external collaborator; this
// file fixes the two interfaces the core owns: the archive opener that
// yields the neostore.* member streams out of a Zstandard-compressed
// dump, and the batch importer the parser drives to materialize records.
// Constraints and native indexes are not imported; recreate them after.

// ImportNode is one node record to materialize.
type ImportNode struct {
	Labels     []string
	Properties map[string]any
}

// ImportRel is one relationship record. Start and End index into the node
// id list returned by the ImportNodes call(s) of the same import.
type ImportRel struct {
	Start      int
	End        int
	Type       string
	Properties map[string]any
}

// BatchImporter is the surface the external dump parser drives.
type BatchImporter interface {
	// ImportNodes materializes a batch and returns the assigned ids in
	// input order.
	ImportNodes(ctx context.Context, nodes []ImportNode) ([]storage.NodeID, error)
	// ImportRelationships materializes relationships whose endpoints
	// reference ids assigned earlier in the same import session.
	ImportRelationships(ctx context.Context, ids []storage.NodeID, rels []ImportRel) error
}

// ImportNodes implements BatchImporter on the database.
func (db *DB) ImportNodes(ctx context.Context, nodes []ImportNode) ([]storage.NodeID, error) {
	ids := make([]storage.NodeID, len(nodes))
	err := db.sess.WithTransaction(ctx, func(ctx context.Context) error {
		for i, n := range nodes {
			node, err := db.sess.CreateNode(ctx, n.Labels, n.Properties)
			if err != nil {
				return err
			}
			ids[i] = node.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ImportRelationships implements BatchImporter on the database.
func (db *DB) ImportRelationships(ctx context.Context, ids []storage.NodeID, rels []ImportRel) error {
	return db.sess.WithTransaction(ctx, func(ctx context.Context) error {
		for _, r := range rels {
			if r.Start < 0 || r.Start >= len(ids) || r.End < 0 || r.End >= len(ids) {
				return fmt.Errorf("relationship references unresolved node index %d..%d", r.Start, r.End)
			}
			if _, err := db.sess.CreateRelationship(ctx, ids[r.Start], ids[r.End], r.Type, r.Properties); err != nil {
				return err
			}
		}
		return nil
	})
}

// ArchiveMember is one neostore.* file extracted from a dump archive.
type ArchiveMember struct {
	Name   string
	Reader io.Reader
}

// OpenArchive streams the neostore.* members of a Zstandard-compressed
// Neo4j dump archive, invoking fn for each. Non-store members are
// skipped.
func OpenArchive(archivePath string, fn func(member ArchiveMember) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open dump archive: %w", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read dump archive: %w", err)
		}
		name := path.Base(hdr.Name)
		if !strings.HasPrefix(name, "neostore") {
			continue
		}
		if err := fn(ArchiveMember{Name: name, Reader: tr}); err != nil {
			return err
		}
	}
}
