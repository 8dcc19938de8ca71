package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"renote/internal/queue"
	"renote/internal/services"
)

// RegisterSession validates a session directory and enqueues it for fusion.
// The returned bool reports whether a new queue item was created; when the
// path is already queued the existing item is returned instead. Both the
// watch monitor and the CLI add command funnel through here so intake rules
// stay in one place.
func RegisterSession(ctx context.Context, store *queue.Store, dir string) (*queue.Item, bool, error) {
	if store == nil {
		return nil, false, errors.New("queue store is required")
	}
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, false, services.Wrap(
			services.ErrValidation, "intake", "register session",
			"Session directory is required", nil)
	}

	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("resolve session path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, services.Wrap(
				services.ErrNotFound, "intake", "register session",
				fmt.Sprintf("Session directory %q does not exist", abs), nil)
		}
		return nil, false, fmt.Errorf("stat session path: %w", err)
	}
	if !info.IsDir() {
		return nil, false, services.Wrap(
			services.ErrValidation, "intake", "register session",
			fmt.Sprintf("Session path %q is not a directory", abs), nil)
	}

	found, err := DiscoverSources(abs)
	if err != nil {
		return nil, false, err
	}
	if len(found) == 0 {
		return nil, false, services.Wrap(
			services.ErrValidation, "intake", "register session",
			fmt.Sprintf("Session directory %q holds no model streams", abs), nil)
	}

	if existing, err := store.FindBySessionPath(ctx, abs); err != nil {
		return nil, false, fmt.Errorf("check existing queue item: %w", err)
	} else if existing != nil {
		return existing, false, nil
	}

	item, err := store.NewSession(ctx, abs, InferTitle(abs))
	if err != nil {
		return nil, false, fmt.Errorf("enqueue session: %w", err)
	}
	return item, true, nil
}
