package document

import (
	"context"
	"errors"
	"fmt"
)

// PreserveNamespace switches doc to ns, runs fn and restores the namespace
// that was current before, on success and on error. An empty ns runs fn in
// the current namespace and still restores it afterwards.
func PreserveNamespace(ctx context.Context, doc Namespaces, ns string, fn func() error) (err error) {
	original, err := doc.CurrentNamespace(ctx)
	if err != nil {
		return fmt.Errorf("document: query current namespace: %w", err)
	}

	defer func() {
		restoreErr := doc.SetNamespace(ctx, original)
		if errors.Is(restoreErr, ErrNotFound) {
			// The original namespace was removed by fn.
			restoreErr = doc.SetNamespace(ctx, RootNamespace)
		}
		if restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("document: restore namespace %s: %w", original, restoreErr))
		}
	}()

	if ns != "" {
		if err := doc.SetNamespace(ctx, ns); err != nil {
			return fmt.Errorf("document: set namespace %s: %w", ns, err)
		}
	}

	return fn()
}

// WithUnlocked clears the lock of a node, runs fn and locks the node again if
// it still exists and was locked before.
func WithUnlocked(ctx context.Context, g Graph, id string, fn func() error) (err error) {
	node, err := g.Node(ctx, id)
	if err != nil {
		return err
	}
	if !node.Locked {
		return fn()
	}

	if err := g.LockNode(ctx, id, false); err != nil {
		return err
	}

	defer func() {
		exists, existsErr := g.Exists(ctx, id)
		if existsErr != nil {
			err = errors.Join(err, existsErr)
			return
		}
		if exists {
			err = errors.Join(err, g.LockNode(ctx, id, true))
		}
	}()

	return fn()
}
