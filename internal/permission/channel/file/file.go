// Package file implements a permission.Channel that drops a JSON request
// file into a directory and waits for a matching response file to
// appear, watched via fsnotify rather than busy-polling, grounded on
// v2/rag/watcher.go's FileWatcher (fsnotify.Watcher wrapped with a
// context-scoped event channel).
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jaatoai/jaato/internal/permission"
)

// Channel writes "<dir>/<request_id>.request.json" and watches dir for
// "<request_id>.response.json" to appear.
type Channel struct {
	dir          string
	pollFallback time.Duration
}

// New builds a file Channel rooted at dir, creating it if necessary.
func New(dir string) (*Channel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: creating channel directory: %w", err)
	}
	return &Channel{dir: dir, pollFallback: 500 * time.Millisecond}, nil
}

// responseFile mirrors spec §6's permission response envelope:
// {request_id, decision, reason?}.
type responseFile struct {
	Decision permission.Action `json:"decision"`
}

// Ask implements permission.Channel.
func (c *Channel) Ask(ctx context.Context, req permission.Request) (permission.Action, error) {
	requestPath := filepath.Join(c.dir, req.RequestID+".request.json")
	responsePath := filepath.Join(c.dir, req.RequestID+".response.json")

	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("file: marshaling request: %w", err)
	}
	if err := os.WriteFile(requestPath, body, 0o644); err != nil {
		return "", fmt.Errorf("file: writing request file: %w", err)
	}

	if action, ok, err := c.readResponse(responsePath); err != nil {
		return "", err
	} else if ok {
		return action, nil
	}

	return c.waitForResponse(ctx, responsePath)
}

func (c *Channel) waitForResponse(ctx context.Context, responsePath string) (permission.Action, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("file: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return "", fmt.Errorf("file: watching directory: %w", err)
	}

	ticker := time.NewTicker(c.pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("file: watcher closed unexpectedly")
			}
			return "", fmt.Errorf("file: watcher error: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("file: watcher closed unexpectedly")
			}
			if ev.Name != responsePath {
				continue
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if action, found, err := c.readResponse(responsePath); err != nil {
				return "", err
			} else if found {
				return action, nil
			}
		case <-ticker.C:
			if action, found, err := c.readResponse(responsePath); err != nil {
				return "", err
			} else if found {
				return action, nil
			}
		}
	}
}

func (c *Channel) readResponse(path string) (permission.Action, bool, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("file: reading response file: %w", err)
	}
	var resp responseFile
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("file: parsing response file: %w", err)
	}
	if resp.Decision == "" {
		return "", false, nil
	}
	return resp.Decision, true, nil
}
