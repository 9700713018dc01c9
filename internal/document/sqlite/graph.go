package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scrypster/reftrack/internal/document"
)

// maxDriveDepth bounds how far GetInt/GetString follow chained connections.
const maxDriveDepth = 32

const nodeColumns = "n.id, n.seq, n.name, n.type, n.namespace, n.dag, n.dag_parent, n.locked, n.referenced_by"

// attrKind is the storage kind of an attribute value.
type attrKind string

const (
	kindInt    attrKind = "int"
	kindString attrKind = "string"
	kindEnum   attrKind = "enum"
)

// attrValue is a stored attribute value.
type attrValue struct {
	kind attrKind
	i    int
	s    string
}

// nodeSpec describes a node to insert.
type nodeSpec struct {
	nodeType     string
	name         string // full name, made unique on insert
	dag          bool
	locked       bool
	referencedBy string
}

// CreateNode creates a node in the current namespace.
func (d *Document) CreateNode(ctx context.Context, nodeType, name string) (*document.Node, error) {
	if nodeType == "" {
		return nil, fmt.Errorf("%w: node type is required", document.ErrInvalidInput)
	}
	if strings.ContainsAny(name, ".:") {
		return nil, fmt.Errorf("%w: node name %q must not contain '.' or ':'", document.ErrInvalidInput, name)
	}
	if name == "" {
		name = nodeType + "1"
	}

	ns, err := d.CurrentNamespace(ctx)
	if err != nil {
		return nil, err
	}

	node, err := d.insertNode(ctx, nodeSpec{nodeType: nodeType, name: document.JoinName(ns, name)})
	if err != nil {
		return nil, err
	}

	d.log.Debug().Str("node", node.Name).Str("type", nodeType).Msg("created node")
	return node, nil
}

// insertNode writes a new node row. The namespace of the name must exist.
func (d *Document) insertNode(ctx context.Context, spec nodeSpec) (*document.Node, error) {
	name, err := d.uniqueNodeName(ctx, spec.name)
	if err != nil {
		return nil, err
	}

	node := &document.Node{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         spec.nodeType,
		Namespace:    document.NamespaceOf(name),
		Dag:          spec.dag,
		Locked:       spec.locked,
		ReferencedBy: spec.referencedBy,
	}

	result, err := d.q.ExecContext(ctx, `
		INSERT INTO nodes (id, name, type, namespace, dag, locked, referenced_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, node.ID, node.Name, node.Type, node.Namespace, boolToInt(node.Dag), boolToInt(node.Locked), nullableString(node.ReferencedBy))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to insert node %s: %w", name, err)
	}

	node.Seq, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read node sequence: %w", err)
	}

	return node, nil
}

// uniqueNodeName increments the trailing number of name until it is free.
func (d *Document) uniqueNodeName(ctx context.Context, name string) (string, error) {
	for {
		var count int
		if err := d.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE name = ?", name).Scan(&count); err != nil {
			return "", fmt.Errorf("sqlite: failed to check node name: %w", err)
		}
		if count == 0 {
			return name, nil
		}
		name = document.IncrementName(name)
	}
}

// DeleteNode removes a node. Driven attributes on other nodes keep the last
// value the deleted node provided.
func (d *Document) DeleteNode(ctx context.Context, id string) error {
	node, err := d.Node(ctx, id)
	if err != nil {
		return err
	}
	if node.Locked {
		return fmt.Errorf("%w: %s", document.ErrLocked, node.Name)
	}

	return d.atomic(ctx, func(tx *Document) error {
		return tx.deleteNode(ctx, node)
	})
}

// deleteNode removes a node regardless of its lock flag.
func (d *Document) deleteNode(ctx context.Context, node *document.Node) error {
	outgoing, err := d.connectionRows(ctx, "src_node = ?", node.ID)
	if err != nil {
		return err
	}
	for _, c := range outgoing {
		if err := d.disconnectRow(ctx, c); err != nil {
			return err
		}
	}

	if _, err := d.q.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", node.ID); err != nil {
		return fmt.Errorf("sqlite: failed to delete node %s: %w", node.Name, err)
	}

	d.log.Debug().Str("node", node.Name).Msg("deleted node")
	return nil
}

// Exists reports whether the node is in the document.
func (d *Document) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	if err := d.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE id = ?", id).Scan(&count); err != nil {
		return false, fmt.Errorf("sqlite: failed to check node: %w", err)
	}
	return count > 0, nil
}

// Node retrieves a node by ID.
func (d *Document) Node(ctx context.Context, id string) (*document.Node, error) {
	row := d.q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes n WHERE n.id = ?", id)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get node: %w", err)
	}
	return node, nil
}

// nodeByName retrieves a node by its full name.
func (d *Document) nodeByName(ctx context.Context, name string) (*document.Node, error) {
	row := d.q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes n WHERE n.name = ?", name)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get node: %w", err)
	}
	return node, nil
}

// LockNode sets the lock flag of a node.
func (d *Document) LockNode(ctx context.Context, id string, locked bool) error {
	result, err := d.q.ExecContext(ctx, "UPDATE nodes SET locked = ? WHERE id = ?", boolToInt(locked), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to lock node: %w", err)
	}
	return requireAffected(result, id)
}

// NodesByType lists nodes of a type in creation order.
func (d *Document) NodesByType(ctx context.Context, nodeType string) ([]*document.Node, error) {
	return d.queryNodes(ctx, "n.type = ? ORDER BY n.seq", nodeType)
}

// ReferencedBy returns the reference node a node was loaded from.
func (d *Document) ReferencedBy(ctx context.Context, id string) (string, error) {
	var ref sql.NullString
	err := d.q.QueryRowContext(ctx, "SELECT referenced_by FROM nodes WHERE id = ?", id).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to query referenced_by: %w", err)
	}
	return ref.String, nil
}

// GetInt returns an int attribute.
func (d *Document) GetInt(ctx context.Context, plug document.Plug) (int, error) {
	v, err := d.getValue(ctx, plug, kindInt)
	return v.i, err
}

// SetInt stores an int attribute.
func (d *Document) SetInt(ctx context.Context, plug document.Plug, value int) error {
	return d.setValue(ctx, plug, attrValue{kind: kindInt, i: value})
}

// GetString returns a string attribute.
func (d *Document) GetString(ctx context.Context, plug document.Plug) (string, error) {
	v, err := d.getValue(ctx, plug, kindString)
	return v.s, err
}

// SetString stores a string attribute.
func (d *Document) SetString(ctx context.Context, plug document.Plug, value string) error {
	return d.setValue(ctx, plug, attrValue{kind: kindString, s: value})
}

// GetEnum returns the field index of an enum attribute.
func (d *Document) GetEnum(ctx context.Context, plug document.Plug) (int, error) {
	v, err := d.getValue(ctx, plug, kindEnum)
	return v.i, err
}

// SetEnum stores the field index of an enum attribute.
func (d *Document) SetEnum(ctx context.Context, plug document.Plug, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: enum index %d", document.ErrInvalidInput, index)
	}
	return d.setValue(ctx, plug, attrValue{kind: kindEnum, i: index})
}

func (d *Document) getValue(ctx context.Context, plug document.Plug, kind attrKind) (attrValue, error) {
	if _, err := d.Node(ctx, plug.Node); err != nil {
		return attrValue{}, err
	}

	v, found, err := d.resolveValue(ctx, plug, 0)
	if err != nil {
		return attrValue{}, err
	}
	if !found {
		return attrValue{kind: kind}, nil
	}
	if !compatibleKinds(v.kind, kind) {
		return attrValue{}, fmt.Errorf("%w: %s is %s, not %s", document.ErrInvalidInput, plug, v.kind, kind)
	}
	return v, nil
}

// resolveValue returns the value of plug, following the first incoming
// connection whose source carries a value.
func (d *Document) resolveValue(ctx context.Context, plug document.Plug, depth int) (attrValue, bool, error) {
	if depth > maxDriveDepth {
		return attrValue{}, false, fmt.Errorf("%w: connection chain at %s is too deep", document.ErrInvalidInput, plug)
	}

	sources, err := d.Connections(ctx, plug, document.Incoming)
	if err != nil {
		return attrValue{}, false, err
	}
	for _, src := range sources {
		v, found, err := d.resolveValue(ctx, src, depth+1)
		if err != nil {
			return attrValue{}, false, err
		}
		if found {
			return v, true, nil
		}
	}

	return d.storedValue(ctx, plug)
}

func (d *Document) storedValue(ctx context.Context, plug document.Plug) (attrValue, bool, error) {
	var v attrValue
	err := d.q.QueryRowContext(ctx, `
		SELECT kind, int_value, string_value FROM attributes WHERE node_id = ? AND name = ?
	`, plug.Node, plug.Attr).Scan(&v.kind, &v.i, &v.s)
	if errors.Is(err, sql.ErrNoRows) {
		return attrValue{}, false, nil
	}
	if err != nil {
		return attrValue{}, false, fmt.Errorf("sqlite: failed to read attribute %s: %w", plug, err)
	}
	return v, true, nil
}

func (d *Document) setValue(ctx context.Context, plug document.Plug, v attrValue) error {
	if plug.Attr == "" {
		return fmt.Errorf("%w: attribute name is required", document.ErrInvalidInput)
	}
	if _, err := d.Node(ctx, plug.Node); err != nil {
		return err
	}
	return d.writeValue(ctx, plug, v)
}

func (d *Document) writeValue(ctx context.Context, plug document.Plug, v attrValue) error {
	_, err := d.q.ExecContext(ctx, `
		INSERT INTO attributes (node_id, name, kind, int_value, string_value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id, name) DO UPDATE SET
			kind = excluded.kind,
			int_value = excluded.int_value,
			string_value = excluded.string_value
	`, plug.Node, plug.Attr, string(v.kind), v.i, v.s)
	if err != nil {
		return fmt.Errorf("sqlite: failed to write attribute %s: %w", plug, err)
	}
	return nil
}

// compatibleKinds lets int readers read enum indices and vice versa.
func compatibleKinds(stored, wanted attrKind) bool {
	if stored == wanted {
		return true
	}
	return stored != kindString && wanted != kindString
}

// Connect creates a connection from src to dst.
func (d *Document) Connect(ctx context.Context, src, dst document.Plug) error {
	if src.Attr == "" || dst.Attr == "" {
		return fmt.Errorf("%w: attribute name is required", document.ErrInvalidInput)
	}
	if src.Node == dst.Node && src.Attr == dst.Attr {
		return fmt.Errorf("%w: cannot connect %s to itself", document.ErrInvalidInput, src)
	}
	for _, id := range []string{src.Node, dst.Node} {
		if _, err := d.Node(ctx, id); err != nil {
			return err
		}
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO connections (src_node, src_attr, dst_node, dst_attr)
		VALUES (?, ?, ?, ?)
	`, src.Node, src.Attr, dst.Node, dst.Attr)
	if err != nil {
		return fmt.Errorf("sqlite: failed to connect %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Disconnect removes the connection from src to dst.
func (d *Document) Disconnect(ctx context.Context, src, dst document.Plug) error {
	rows, err := d.connectionRows(ctx, "src_node = ? AND src_attr = ? AND dst_node = ? AND dst_attr = ?",
		src.Node, src.Attr, dst.Node, dst.Attr)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s is not connected to %s", document.ErrNotFound, src, dst)
	}
	return d.atomic(ctx, func(tx *Document) error {
		return tx.disconnectRow(ctx, rows[0])
	})
}

// IsConnected reports whether src drives dst.
func (d *Document) IsConnected(ctx context.Context, src, dst document.Plug) (bool, error) {
	rows, err := d.connectionRows(ctx, "src_node = ? AND src_attr = ? AND dst_node = ? AND dst_attr = ?",
		src.Node, src.Attr, dst.Node, dst.Attr)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Connections lists the plugs connected to plug in the given direction.
func (d *Document) Connections(ctx context.Context, plug document.Plug, dir document.Direction) ([]document.Plug, error) {
	var rows []connection
	var err error
	if dir == document.Incoming {
		rows, err = d.connectionRows(ctx, "dst_node = ? AND dst_attr = ?", plug.Node, plug.Attr)
	} else {
		rows, err = d.connectionRows(ctx, "src_node = ? AND src_attr = ?", plug.Node, plug.Attr)
	}
	if err != nil {
		return nil, err
	}

	plugs := make([]document.Plug, 0, len(rows))
	for _, c := range rows {
		if dir == document.Incoming {
			plugs = append(plugs, c.src)
		} else {
			plugs = append(plugs, c.dst)
		}
	}
	return plugs, nil
}

// connection is a row of the connections table.
type connection struct {
	seq int64
	src document.Plug
	dst document.Plug
}

func (d *Document) connectionRows(ctx context.Context, where string, args ...any) ([]connection, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT seq, src_node, src_attr, dst_node, dst_attr FROM connections
		WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query connections: %w", err)
	}
	defer rows.Close()

	var result []connection
	for rows.Next() {
		var c connection
		if err := rows.Scan(&c.seq, &c.src.Node, &c.src.Attr, &c.dst.Node, &c.dst.Attr); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan connection: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// disconnectRow deletes a connection and keeps the driven value on dst.
func (d *Document) disconnectRow(ctx context.Context, c connection) error {
	v, found, err := d.resolveValue(ctx, c.src, 0)
	if err != nil {
		return err
	}

	if _, err := d.q.ExecContext(ctx, "DELETE FROM connections WHERE seq = ?", c.seq); err != nil {
		return fmt.Errorf("sqlite: failed to disconnect %s -> %s: %w", c.src, c.dst, err)
	}

	if found {
		return d.writeValue(ctx, c.dst, v)
	}
	return nil
}

// queryNodes lists nodes matching a WHERE clause on the nodes table aliased as n.
func (d *Document) queryNodes(ctx context.Context, where string, args ...any) ([]*document.Node, error) {
	rows, err := d.q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes n WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*document.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*document.Node, error) {
	var (
		node         document.Node
		dag, locked  int
		dagParent    sql.NullString
		referencedBy sql.NullString
	)
	if err := row.Scan(&node.ID, &node.Seq, &node.Name, &node.Type, &node.Namespace,
		&dag, &dagParent, &locked, &referencedBy); err != nil {
		return nil, err
	}
	node.Dag = dag != 0
	node.Locked = locked != 0
	node.DagParent = dagParent.String
	node.ReferencedBy = referencedBy.String
	return &node, nil
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return nil
}
