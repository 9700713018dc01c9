package sqlite

// Schema contains the SQL statements to create the document tables.
// All statements are idempotent so an existing document can be reopened.
const Schema = `
-- Nodes: every object of the document
CREATE TABLE IF NOT EXISTS nodes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    namespace TEXT NOT NULL DEFAULT ':',
    dag INTEGER NOT NULL DEFAULT 0,
    dag_parent TEXT REFERENCES nodes(id) ON DELETE SET NULL,
    locked INTEGER NOT NULL DEFAULT 0,
    referenced_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_namespace ON nodes(namespace);
CREATE INDEX IF NOT EXISTS idx_nodes_referenced_by ON nodes(referenced_by);

-- Typed attribute values (kind: int, string, enum)
CREATE TABLE IF NOT EXISTS attributes (
    node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    int_value INTEGER NOT NULL DEFAULT 0,
    string_value TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (node_id, name)
);

-- Directed attribute connections
CREATE TABLE IF NOT EXISTS connections (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    src_node TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    src_attr TEXT NOT NULL,
    dst_node TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    dst_attr TEXT NOT NULL,
    UNIQUE (src_node, src_attr, dst_node, dst_attr)
);

CREATE INDEX IF NOT EXISTS idx_connections_dst ON connections(dst_node, dst_attr);

-- Namespaces (':' is the root namespace)
CREATE TABLE IF NOT EXISTS namespaces (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

INSERT OR IGNORE INTO namespaces (name) VALUES (':');

-- File references, one row per reference node
CREATE TABLE IF NOT EXISTS refs (
    node_id TEXT PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    namespace TEXT NOT NULL,
    copy_number INTEGER NOT NULL DEFAULT 0,
    loaded INTEGER NOT NULL DEFAULT 1
);

-- Edits between referenced and local nodes, replayed when a reference loads
CREATE TABLE IF NOT EXISTS reference_edits (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    ref_node TEXT NOT NULL REFERENCES refs(node_id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    src_name TEXT NOT NULL,
    src_attr TEXT NOT NULL DEFAULT '',
    dst_name TEXT NOT NULL,
    dst_attr TEXT NOT NULL DEFAULT ''
);
`
