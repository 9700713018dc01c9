package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/reftrack/internal/document"
)

// CurrentNamespace returns the namespace new nodes are created in.
func (d *Document) CurrentNamespace(ctx context.Context) (string, error) {
	d.session.mu.Lock()
	defer d.session.mu.Unlock()
	return d.session.namespace, nil
}

// SetNamespace switches the current namespace.
func (d *Document) SetNamespace(ctx context.Context, ns string) error {
	ns = document.NormalizeNamespace(ns)
	exists, err := d.NamespaceExists(ctx, ns)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: namespace %s", document.ErrNotFound, ns)
	}

	d.session.mu.Lock()
	d.session.namespace = ns
	d.session.mu.Unlock()
	return nil
}

// NamespaceExists reports whether ns is in the document.
func (d *Document) NamespaceExists(ctx context.Context, ns string) (bool, error) {
	var count int
	err := d.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM namespaces WHERE name = ?",
		document.NormalizeNamespace(ns)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check namespace: %w", err)
	}
	return count > 0, nil
}

// NamespaceContent lists the nodes of ns and its child namespaces in
// creation order. The root namespace lists only root nodes.
func (d *Document) NamespaceContent(ctx context.Context, ns string) ([]*document.Node, error) {
	ns = document.NormalizeNamespace(ns)
	exists, err := d.NamespaceExists(ctx, ns)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: namespace %s", document.ErrNotFound, ns)
	}

	if ns == document.RootNamespace {
		return d.queryNodes(ctx, "n.namespace = ? ORDER BY n.seq", ns)
	}
	return d.queryNodes(ctx, "(n.namespace = ? OR n.namespace LIKE ? ESCAPE '\\') ORDER BY n.seq", ns, likePrefix(ns))
}

// RemoveNamespace deletes an empty namespace and its empty child namespaces.
func (d *Document) RemoveNamespace(ctx context.Context, ns string) error {
	ns = document.NormalizeNamespace(ns)
	if ns == document.RootNamespace {
		return fmt.Errorf("%w: cannot remove the root namespace", document.ErrInvalidInput)
	}

	content, err := d.NamespaceContent(ctx, ns)
	if err != nil {
		return err
	}
	if len(content) > 0 {
		return fmt.Errorf("%w: %s has %d nodes", document.ErrNamespaceNotEmpty, ns, len(content))
	}

	if _, err := d.q.ExecContext(ctx, "DELETE FROM namespaces WHERE name = ? OR name LIKE ? ESCAPE '\\'", ns, likePrefix(ns)); err != nil {
		return fmt.Errorf("sqlite: failed to remove namespace %s: %w", ns, err)
	}

	d.session.mu.Lock()
	if document.InNamespace(d.session.namespace, ns) {
		d.session.namespace = document.RootNamespace
	}
	d.session.mu.Unlock()

	d.log.Debug().Str("namespace", ns).Msg("removed namespace")
	return nil
}

// addNamespace creates ns and all of its parent namespaces.
func (d *Document) addNamespace(ctx context.Context, ns string) error {
	ns = document.NormalizeNamespace(ns)
	if ns == document.RootNamespace {
		return nil
	}

	parts := strings.Split(ns, ":")
	for i := range parts {
		name := strings.Join(parts[:i+1], ":")
		if _, err := d.q.ExecContext(ctx, "INSERT OR IGNORE INTO namespaces (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("sqlite: failed to add namespace %s: %w", name, err)
		}
	}
	return nil
}

// allocateNamespace creates a new namespace below the current one, derived
// from suggestion. On collision the trailing number of the suggestion is
// incremented until the name is free: smurf_1, smurf_2, ...
func (d *Document) allocateNamespace(ctx context.Context, suggestion string) (string, error) {
	suggestion = strings.Trim(suggestion, ":")
	if suggestion == "" || strings.ContainsAny(suggestion, ".") {
		return "", fmt.Errorf("%w: namespace suggestion %q", document.ErrInvalidInput, suggestion)
	}

	current, err := d.CurrentNamespace(ctx)
	if err != nil {
		return "", err
	}

	ns := document.JoinName(current, suggestion)
	for {
		exists, err := d.NamespaceExists(ctx, ns)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		ns = document.IncrementName(ns)
	}

	if err := d.addNamespace(ctx, ns); err != nil {
		return "", err
	}

	d.log.Debug().Str("namespace", ns).Str("suggestion", suggestion).Msg("allocated namespace")
	return ns, nil
}

// likePrefix returns a LIKE pattern matching child namespaces of ns.
func likePrefix(ns string) string {
	escaped := strings.NewReplacer("%", "\\%", "_", "\\_").Replace(ns)
	return escaped + ":%"
}
