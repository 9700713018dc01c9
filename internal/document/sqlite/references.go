package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/reftrack/internal/document"
)

const (
	editConnect = "connect"
	editParent  = "parent"
)

// referenceSpec describes a reference node to create.
type referenceSpec struct {
	name         string // full node name
	path         string
	namespace    string // full content namespace
	referencedBy string
	loaded       bool
}

// reference is a row of the refs table joined with its node.
type reference struct {
	node       *document.Node
	path       string
	namespace  string
	copyNumber int
	loaded     bool
}

// filename returns the path with the copy suffix of duplicate references.
func (r *reference) filename() string {
	return referenceFilename(r.path, r.copyNumber)
}

func referenceFilename(path string, copyNumber int) string {
	if copyNumber == 0 {
		return path
	}
	return fmt.Sprintf("%s{%d}", path, copyNumber)
}

// ReferenceFile references the scene file at path into a new namespace.
func (d *Document) ReferenceFile(ctx context.Context, path, nsSuggestion string) (string, error) {
	if _, err := ReadSceneFile(path); err != nil {
		return "", err
	}

	var filename string
	err := d.atomic(ctx, func(tx *Document) error {
		ns, err := tx.allocateNamespace(ctx, nsSuggestion)
		if err != nil {
			return err
		}

		node, err := tx.createReference(ctx, referenceSpec{
			name:      strings.ReplaceAll(ns, ":", "_") + "RN",
			path:      path,
			namespace: ns,
			loaded:    true,
		}, 0)
		if err != nil {
			return err
		}

		r, err := tx.reference(ctx, node.ID)
		if err != nil {
			return err
		}
		filename = r.filename()
		return nil
	})
	if err != nil {
		return "", err
	}

	d.log.Info().Str("path", path).Str("filename", filename).Msg("referenced file")
	return filename, nil
}

// createReference inserts a reference node and loads its content. A nested
// reference whose file is missing is kept unloaded.
func (d *Document) createReference(ctx context.Context, spec referenceSpec, depth int) (*document.Node, error) {
	if err := d.addNamespace(ctx, spec.namespace); err != nil {
		return nil, err
	}

	node, err := d.insertNode(ctx, nodeSpec{
		nodeType:     document.ReferenceNodeType,
		name:         spec.name,
		referencedBy: spec.referencedBy,
	})
	if err != nil {
		return nil, err
	}

	var copyNumber int
	err = d.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(copy_number) + 1, 0) FROM refs WHERE path = ?", spec.path).Scan(&copyNumber)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count references: %w", err)
	}

	_, err = d.q.ExecContext(ctx, `
		INSERT INTO refs (node_id, path, namespace, copy_number, loaded)
		VALUES (?, ?, ?, ?, 0)
	`, node.ID, spec.path, spec.namespace, copyNumber)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to insert reference: %w", err)
	}

	if !spec.loaded {
		return node, nil
	}

	sf, err := ReadSceneFile(spec.path)
	if errors.Is(err, document.ErrFileNotFound) && depth > 0 {
		d.log.Warn().Str("path", spec.path).Str("reference", node.Name).Msg("nested reference file missing, left unloaded")
		return node, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := d.loadContent(ctx, sf, spec.namespace, node.ID, depth); err != nil {
		return nil, err
	}
	if err := d.setLoaded(ctx, node.ID, true); err != nil {
		return nil, err
	}
	return node, nil
}

// References lists all reference nodes in creation order.
func (d *Document) References(ctx context.Context) ([]string, error) {
	refs, err := d.queryReferences(ctx, "1 = 1")
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.node.ID
	}
	return ids, nil
}

// ReferenceNamespace returns the namespace of the referenced content.
func (d *Document) ReferenceNamespace(ctx context.Context, ref string) (string, error) {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return "", err
	}
	return r.namespace, nil
}

// ReferenceFilename returns the path of the reference with its copy suffix.
func (d *Document) ReferenceFilename(ctx context.Context, ref string) (string, error) {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return "", err
	}
	return r.filename(), nil
}

// ReferencePath returns the path of the referenced file.
func (d *Document) ReferencePath(ctx context.Context, ref string) (string, error) {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return "", err
	}
	return r.path, nil
}

// IsLoaded reports whether the content of the reference is in the document.
func (d *Document) IsLoaded(ctx context.Context, ref string) (bool, error) {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return false, err
	}
	return r.loaded, nil
}

// LoadReference loads the content of an unloaded reference and replays the
// edits recorded when it was unloaded. Loading a loaded reference is a no-op.
func (d *Document) LoadReference(ctx context.Context, ref string) error {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return err
	}
	if r.loaded {
		return nil
	}

	sf, err := ReadSceneFile(r.path)
	if err != nil {
		return err
	}

	err = d.atomic(ctx, func(tx *Document) error {
		if err := tx.addNamespace(ctx, r.namespace); err != nil {
			return err
		}
		if _, err := tx.loadContent(ctx, sf, r.namespace, ref, 0); err != nil {
			return err
		}
		if err := tx.replayEdits(ctx, ref); err != nil {
			return err
		}
		return tx.setLoaded(ctx, ref, true)
	})
	if err != nil {
		return err
	}

	d.log.Info().Str("reference", r.node.Name).Msg("loaded reference")
	return nil
}

// UnloadReference removes the content of a reference from the document and
// records the edits that connect it to local nodes.
func (d *Document) UnloadReference(ctx context.Context, ref string) error {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return err
	}
	if !r.loaded {
		return nil
	}

	err = d.atomic(ctx, func(tx *Document) error {
		if err := tx.unloadContent(ctx, ref); err != nil {
			return err
		}
		return tx.setLoaded(ctx, ref, false)
	})
	if err != nil {
		return err
	}

	d.log.Info().Str("reference", r.node.Name).Msg("unloaded reference")
	return nil
}

// ReplaceReference swaps the file of a reference and keeps its namespace.
// The content of a loaded reference is reloaded from the new file.
func (d *Document) ReplaceReference(ctx context.Context, ref, path string) (string, error) {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return "", err
	}

	sf, err := ReadSceneFile(path)
	if err != nil {
		return "", err
	}

	var filename string
	err = d.atomic(ctx, func(tx *Document) error {
		if r.loaded {
			if err := tx.unloadContent(ctx, ref); err != nil {
				return err
			}
		}

		var copyNumber int
		err := tx.q.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(copy_number) + 1, 0) FROM refs WHERE path = ? AND node_id != ?", path, ref).Scan(&copyNumber)
		if err != nil {
			return fmt.Errorf("sqlite: failed to count references: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx, "UPDATE refs SET path = ?, copy_number = ? WHERE node_id = ?", path, copyNumber, ref); err != nil {
			return fmt.Errorf("sqlite: failed to update reference: %w", err)
		}
		filename = referenceFilename(path, copyNumber)

		if !r.loaded {
			return nil
		}
		if _, err := tx.loadContent(ctx, sf, r.namespace, ref, 0); err != nil {
			return err
		}
		return tx.replayEdits(ctx, ref)
	})
	if err != nil {
		return "", err
	}

	d.log.Info().Str("reference", r.node.Name).Str("path", path).Msg("replaced reference")
	return filename, nil
}

// RemoveReference deletes the reference node with all of its content. The
// content namespace is removed when nothing else is left in it.
func (d *Document) RemoveReference(ctx context.Context, ref string) error {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return err
	}

	err = d.atomic(ctx, func(tx *Document) error {
		owned, err := tx.ownedNodes(ctx, ref)
		if err != nil {
			return err
		}
		for _, n := range owned {
			if err := tx.deleteNode(ctx, n); err != nil {
				return err
			}
		}
		if err := tx.deleteNode(ctx, r.node); err != nil {
			return err
		}

		if exists, err := tx.NamespaceExists(ctx, r.namespace); err != nil || !exists {
			return err
		}
		err = tx.RemoveNamespace(ctx, r.namespace)
		if errors.Is(err, document.ErrNamespaceNotEmpty) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	d.log.Info().Str("reference", r.node.Name).Msg("removed reference")
	return nil
}

// ImportReference turns the content of a loaded reference into local nodes
// and deletes the reference node. Nested references become local references.
func (d *Document) ImportReference(ctx context.Context, ref string) error {
	r, err := d.reference(ctx, ref)
	if err != nil {
		return err
	}
	if !r.loaded {
		return fmt.Errorf("%w: %s", document.ErrNotLoaded, r.node.Name)
	}

	err = d.atomic(ctx, func(tx *Document) error {
		if _, err := tx.q.ExecContext(ctx, "UPDATE nodes SET referenced_by = NULL WHERE referenced_by = ?", ref); err != nil {
			return fmt.Errorf("sqlite: failed to import reference: %w", err)
		}
		return tx.deleteNode(ctx, r.node)
	})
	if err != nil {
		return err
	}

	d.log.Info().Str("reference", r.node.Name).Msg("imported reference")
	return nil
}

// reference looks up a reference node.
func (d *Document) reference(ctx context.Context, ref string) (*reference, error) {
	refs, err := d.queryReferences(ctx, "r.node_id = ?", ref)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		return refs[0], nil
	}

	if _, err := d.Node(ctx, ref); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", document.ErrNotReference, ref)
}

func (d *Document) queryReferences(ctx context.Context, where string, args ...any) ([]*reference, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+nodeColumns+`, r.path, r.namespace, r.copy_number, r.loaded
		FROM refs r JOIN nodes n ON n.id = r.node_id
		WHERE `+where+` ORDER BY n.seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query references: %w", err)
	}
	defer rows.Close()

	var refs []*reference
	for rows.Next() {
		var (
			r                       reference
			node                    document.Node
			dag, locked, loaded     int
			dagParent, referencedBy sql.NullString
		)
		if err := rows.Scan(&node.ID, &node.Seq, &node.Name, &node.Type, &node.Namespace,
			&dag, &dagParent, &locked, &referencedBy,
			&r.path, &r.namespace, &r.copyNumber, &loaded); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan reference: %w", err)
		}
		node.Dag = dag != 0
		node.Locked = locked != 0
		node.DagParent = dagParent.String
		node.ReferencedBy = referencedBy.String
		r.node = &node
		r.loaded = loaded != 0
		refs = append(refs, &r)
	}
	return refs, rows.Err()
}

func (d *Document) setLoaded(ctx context.Context, ref string, loaded bool) error {
	result, err := d.q.ExecContext(ctx, "UPDATE refs SET loaded = ? WHERE node_id = ?", boolToInt(loaded), ref)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update reference state: %w", err)
	}
	return requireAffected(result, ref)
}

// ownedNodes returns every node loaded from ref, including nested reference
// nodes and their content. Nested content comes first.
func (d *Document) ownedNodes(ctx context.Context, ref string) ([]*document.Node, error) {
	direct, err := d.queryNodes(ctx, "n.referenced_by = ? ORDER BY n.seq", ref)
	if err != nil {
		return nil, err
	}

	var owned []*document.Node
	for _, n := range direct {
		if n.Type != document.ReferenceNodeType {
			continue
		}
		nested, err := d.ownedNodes(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		owned = append(owned, nested...)
	}
	return append(owned, direct...), nil
}

// unloadContent records the edits between the content of ref and local
// nodes, then deletes the content ignoring lock flags.
func (d *Document) unloadContent(ctx context.Context, ref string) error {
	owned, err := d.ownedNodes(ctx, ref)
	if err != nil {
		return err
	}
	inRef := make(map[string]*document.Node, len(owned))
	for _, n := range owned {
		inRef[n.ID] = n
	}

	names := func(id string) (string, error) {
		if n, ok := inRef[id]; ok {
			return n.Name, nil
		}
		n, err := d.Node(ctx, id)
		if err != nil {
			return "", err
		}
		return n.Name, nil
	}

	conns, err := d.connectionRows(ctx, "1 = 1")
	if err != nil {
		return err
	}
	for _, c := range conns {
		_, srcIn := inRef[c.src.Node]
		_, dstIn := inRef[c.dst.Node]
		if srcIn == dstIn || c.src.Node == ref || c.dst.Node == ref {
			continue
		}
		src, err := names(c.src.Node)
		if err != nil {
			return err
		}
		dst, err := names(c.dst.Node)
		if err != nil {
			return err
		}
		if err := d.recordEdit(ctx, ref, editConnect, src, c.src.Attr, dst, c.dst.Attr); err != nil {
			return err
		}
	}

	local, err := d.queryNodes(ctx, "n.dag_parent IS NOT NULL ORDER BY n.seq")
	if err != nil {
		return err
	}
	for _, n := range local {
		_, childIn := inRef[n.ID]
		_, parentIn := inRef[n.DagParent]
		if childIn == parentIn {
			continue
		}
		parent, err := names(n.DagParent)
		if err != nil {
			return err
		}
		if err := d.recordEdit(ctx, ref, editParent, n.Name, "", parent, ""); err != nil {
			return err
		}
	}

	for _, n := range owned {
		if err := d.deleteNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) recordEdit(ctx context.Context, ref, kind, src, srcAttr, dst, dstAttr string) error {
	_, err := d.q.ExecContext(ctx, `
		INSERT INTO reference_edits (ref_node, kind, src_name, src_attr, dst_name, dst_attr)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ref, kind, src, srcAttr, dst, dstAttr)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record reference edit: %w", err)
	}
	return nil
}

// replayEdits restores the recorded edits of ref and clears them. Edits whose
// nodes no longer exist are dropped.
func (d *Document) replayEdits(ctx context.Context, ref string) error {
	type edit struct {
		kind, src, srcAttr, dst, dstAttr string
	}

	rows, err := d.q.QueryContext(ctx, `
		SELECT kind, src_name, src_attr, dst_name, dst_attr FROM reference_edits
		WHERE ref_node = ? ORDER BY seq
	`, ref)
	if err != nil {
		return fmt.Errorf("sqlite: failed to query reference edits: %w", err)
	}
	var edits []edit
	for rows.Next() {
		var e edit
		if err := rows.Scan(&e.kind, &e.src, &e.srcAttr, &e.dst, &e.dstAttr); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: failed to scan reference edit: %w", err)
		}
		edits = append(edits, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: failed to read reference edits: %w", err)
	}

	for _, e := range edits {
		src, srcErr := d.nodeByName(ctx, e.src)
		dst, dstErr := d.nodeByName(ctx, e.dst)
		if srcErr != nil || dstErr != nil {
			d.log.Warn().Str("kind", e.kind).Str("src", e.src).Str("dst", e.dst).Msg("dropping reference edit for missing node")
			continue
		}

		switch e.kind {
		case editConnect:
			err = d.Connect(ctx, document.P(src.ID, e.srcAttr), document.P(dst.ID, e.dstAttr))
		case editParent:
			err = d.setDagParent(ctx, src.ID, dst.ID)
		default:
			err = fmt.Errorf("%w: unknown reference edit %q", document.ErrInvalidInput, e.kind)
		}
		if err != nil {
			return err
		}
	}

	if _, err := d.q.ExecContext(ctx, "DELETE FROM reference_edits WHERE ref_node = ?", ref); err != nil {
		return fmt.Errorf("sqlite: failed to clear reference edits: %w", err)
	}
	return nil
}
