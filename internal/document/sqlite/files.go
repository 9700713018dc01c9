package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/scrypster/reftrack/internal/document"
)

// ImportFile copies the nodes of a scene file into a new namespace.
func (d *Document) ImportFile(ctx context.Context, path, nsSuggestion string) ([]*document.Node, error) {
	sf, err := ReadSceneFile(path)
	if err != nil {
		return nil, err
	}

	var nodes []*document.Node
	err = d.atomic(ctx, func(tx *Document) error {
		ns, err := tx.allocateNamespace(ctx, nsSuggestion)
		if err != nil {
			return err
		}
		nodes, err = tx.loadContent(ctx, sf, ns, "", 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.log.Debug().Str("path", path).Int("nodes", len(nodes)).Msg("imported file")
	return nodes, nil
}

// maxReferenceDepth bounds how deep nested references are followed.
const maxReferenceDepth = 16

// loadContent creates the nodes and nested references of sf in ns. Nodes are
// marked as referenced by ref unless ref is empty.
func (d *Document) loadContent(ctx context.Context, sf *SceneFile, ns, ref string, depth int) ([]*document.Node, error) {
	if depth > maxReferenceDepth {
		return nil, fmt.Errorf("%w: references nested deeper than %d", document.ErrInvalidInput, maxReferenceDepth)
	}

	ids := make(map[string]string, len(sf.Nodes)+len(sf.References))
	nodes := make([]*document.Node, 0, len(sf.Nodes))

	for _, sn := range sf.Nodes {
		name := document.JoinName(ns, sn.Name)
		if err := d.addNamespace(ctx, document.NamespaceOf(name)); err != nil {
			return nil, err
		}

		node, err := d.insertNode(ctx, nodeSpec{
			nodeType:     sn.Type,
			name:         name,
			dag:          sn.Dag,
			locked:       sn.Locked,
			referencedBy: ref,
		})
		if err != nil {
			return nil, err
		}
		ids[sn.Name] = node.ID
		nodes = append(nodes, node)

		for _, attr := range sortedKeys(sn.Ints) {
			if err := d.writeValue(ctx, document.P(node.ID, attr), attrValue{kind: kindInt, i: sn.Ints[attr]}); err != nil {
				return nil, err
			}
		}
		for _, attr := range sortedKeys(sn.Strings) {
			if err := d.writeValue(ctx, document.P(node.ID, attr), attrValue{kind: kindString, s: sn.Strings[attr]}); err != nil {
				return nil, err
			}
		}
		for _, attr := range sortedKeys(sn.Enums) {
			if err := d.writeValue(ctx, document.P(node.ID, attr), attrValue{kind: kindEnum, i: sn.Enums[attr]}); err != nil {
				return nil, err
			}
		}
	}

	for _, sr := range sf.References {
		refNs := document.JoinName(ns, strings.Trim(sr.Namespace, ":"))
		node, err := d.createReference(ctx, referenceSpec{
			name:         document.JoinName(ns, sr.Node),
			path:         sr.Path,
			namespace:    refNs,
			referencedBy: ref,
			loaded:       !sr.Unloaded,
		}, depth+1)
		if err != nil {
			return nil, err
		}
		ids[sr.Node] = node.ID
	}

	for i, sn := range sf.Nodes {
		if sn.Parent == "" {
			continue
		}
		if err := d.setDagParent(ctx, nodes[i].ID, ids[sn.Parent]); err != nil {
			return nil, err
		}
		nodes[i].DagParent = ids[sn.Parent]
	}

	for _, c := range sf.Connections {
		srcNode, srcAttr, _ := splitPlug(c.Src)
		dstNode, dstAttr, _ := splitPlug(c.Dst)
		if err := d.Connect(ctx, document.P(ids[srcNode], srcAttr), document.P(ids[dstNode], dstAttr)); err != nil {
			return nil, err
		}
	}

	return nodes, nil
}

// Save writes every local node, the local references and the connections
// between them to path. Referenced content is not written; it is loaded from
// the referenced files again.
func (d *Document) Save(ctx context.Context, path string) error {
	nodes, err := d.queryNodes(ctx, "n.referenced_by IS NULL AND n.type != ? ORDER BY n.seq", document.ReferenceNodeType)
	if err != nil {
		return err
	}

	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}

	sf := &SceneFile{}
	for _, n := range nodes {
		sn := SceneNode{
			Name:   n.Name,
			Type:   n.Type,
			Dag:    n.Dag,
			Locked: n.Locked,
			Parent: names[n.DagParent],
		}
		if err := d.collectAttributes(ctx, n.ID, &sn); err != nil {
			return err
		}
		sf.Nodes = append(sf.Nodes, sn)
	}

	refs, err := d.queryReferences(ctx, "n.referenced_by IS NULL")
	if err != nil {
		return err
	}
	for _, r := range refs {
		names[r.node.ID] = r.node.Name
		sf.References = append(sf.References, SceneReference{
			Node:      r.node.Name,
			Path:      r.path,
			Namespace: r.namespace,
			Unloaded:  !r.loaded,
		})
	}

	conns, err := d.connectionRows(ctx, "1 = 1")
	if err != nil {
		return err
	}
	for _, c := range conns {
		src, srcOK := names[c.src.Node]
		dst, dstOK := names[c.dst.Node]
		if !srcOK || !dstOK {
			continue
		}
		sf.Connections = append(sf.Connections, SceneConnection{
			Src: src + "." + c.src.Attr,
			Dst: dst + "." + c.dst.Attr,
		})
	}

	if err := WriteSceneFile(path, sf); err != nil {
		return err
	}

	d.log.Debug().Str("path", path).Int("nodes", len(sf.Nodes)).Msg("saved document")
	return nil
}

func (d *Document) collectAttributes(ctx context.Context, id string, sn *SceneNode) error {
	rows, err := d.q.QueryContext(ctx, `
		SELECT name, kind, int_value, string_value FROM attributes WHERE node_id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to query attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			v    attrValue
		)
		if err := rows.Scan(&name, &v.kind, &v.i, &v.s); err != nil {
			return fmt.Errorf("sqlite: failed to scan attribute: %w", err)
		}
		switch v.kind {
		case kindInt:
			if sn.Ints == nil {
				sn.Ints = make(map[string]int)
			}
			sn.Ints[name] = v.i
		case kindString:
			if sn.Strings == nil {
				sn.Strings = make(map[string]string)
			}
			sn.Strings[name] = v.s
		case kindEnum:
			if sn.Enums == nil {
				sn.Enums = make(map[string]int)
			}
			sn.Enums[name] = v.i
		}
	}
	return rows.Err()
}

// CreateGroup creates a DAG node and parents children under it.
func (d *Document) CreateGroup(ctx context.Context, nodeType, name string, children []string) (*document.Node, error) {
	var group *document.Node
	err := d.atomic(ctx, func(tx *Document) error {
		node, err := tx.CreateNode(ctx, nodeType, name)
		if err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, "UPDATE nodes SET dag = 1 WHERE id = ?", node.ID); err != nil {
			return fmt.Errorf("sqlite: failed to mark group: %w", err)
		}
		node.Dag = true

		for _, child := range children {
			if _, err := tx.Node(ctx, child); err != nil {
				return err
			}
			if err := tx.setDagParent(ctx, child, node.ID); err != nil {
				return err
			}
		}
		group = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.log.Debug().Str("group", group.Name).Int("children", len(children)).Msg("created group")
	return group, nil
}

// DagParent returns the DAG parent of a node.
func (d *Document) DagParent(ctx context.Context, id string) (string, error) {
	node, err := d.Node(ctx, id)
	if err != nil {
		return "", err
	}
	return node.DagParent, nil
}

// SetDagParent parents a DAG node under another one.
func (d *Document) SetDagParent(ctx context.Context, child, parent string) error {
	node, err := d.Node(ctx, child)
	if err != nil {
		return err
	}
	if !node.Dag {
		return fmt.Errorf("%w: %s is not a DAG node", document.ErrInvalidInput, node.Name)
	}
	if parent != "" {
		p, err := d.Node(ctx, parent)
		if err != nil {
			return err
		}
		if !p.Dag {
			return fmt.Errorf("%w: %s is not a DAG node", document.ErrInvalidInput, p.Name)
		}
	}
	return d.setDagParent(ctx, child, parent)
}

func (d *Document) setDagParent(ctx context.Context, child, parent string) error {
	if child == parent {
		return fmt.Errorf("%w: node cannot be its own DAG parent", document.ErrInvalidInput)
	}
	_, err := d.q.ExecContext(ctx, "UPDATE nodes SET dag_parent = ? WHERE id = ?", nullableString(parent), child)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set DAG parent: %w", err)
	}
	return nil
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
