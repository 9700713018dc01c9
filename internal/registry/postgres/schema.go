// Package postgres provides a Registry backed by a PostgreSQL project database.
package postgres

// Schema contains the SQL statements to create the registry tables.
const Schema = `
-- Elements: assets and shots of the project
CREATE TABLE IF NOT EXISTS elements (
    id INTEGER PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('asset', 'shot')),
    name TEXT NOT NULL,
    UNIQUE (kind, name)
);

-- Assets linked to an element
CREATE TABLE IF NOT EXISTS element_assets (
    element_id INTEGER NOT NULL REFERENCES elements(id) ON DELETE CASCADE,
    asset_id INTEGER NOT NULL REFERENCES elements(id) ON DELETE CASCADE,
    PRIMARY KEY (element_id, asset_id)
);

-- Task files: versioned content items
CREATE TABLE IF NOT EXISTS taskfiles (
    id INTEGER PRIMARY KEY,
    element_id INTEGER NOT NULL REFERENCES elements(id) ON DELETE CASCADE,
    task TEXT NOT NULL,
    descriptor TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL CHECK (version > 0),
    release_type TEXT NOT NULL,
    file_type TEXT NOT NULL,
    UNIQUE (element_id, task, descriptor, version, release_type, file_type)
);

CREATE INDEX IF NOT EXISTS idx_taskfiles_element ON taskfiles(element_id);
`
