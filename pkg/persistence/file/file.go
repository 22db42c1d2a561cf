// Package file provides file-based persistence. It keeps every record as one
// JSON document under the root directory and is meant for development and
// tests, not for concurrent multi-process deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/karzal/wove/pkg/models"
	"github.com/karzal/wove/pkg/persistence"
)

const (
	workflowsDir        = "workflows"
	pausedExecutionsDir = "paused_executions"
	pausePointsDir      = "pause_points"
	resumeQueueDir      = "resume_queue"
)

// Persistence implements persistence.Persistence on the file system. A
// single process-wide mutex serializes access; the claim semantics of the
// resume queue depend on it.
type Persistence struct {
	root string
	mu   sync.Mutex
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{workflowsDir, pausedExecutionsDir, pausePointsDir, resumeQueueDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Workflows returns all workflows that are not soft-deleted.
func (fp *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var workflows []*models.Workflow

	err := fp.forEachDocument(workflowsDir, func(path string) error {
		var workflow models.Workflow
		if err := readDocument(path, &workflow); err != nil {
			return err
		}

		if workflow.DeletedAt == nil {
			workflows = append(workflows, &workflow)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return workflows, nil
}

func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := writeDocument(fp.path(workflowsDir, workflow.ID), workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	var workflow models.Workflow

	err := readDocument(fp.path(workflowsDir, id), &workflow)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// DeleteWorkflow soft-deletes by stamping deleted_at.
func (fp *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	workflow, err := fp.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	if err := writeDocument(fp.path(workflowsDir, id), workflow); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, id+".json")
}

func (fp *Persistence) forEachDocument(dir string, visit func(path string) error) error {
	entries, err := os.ReadDir(filepath.Join(fp.root, dir))
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		if err := visit(filepath.Join(fp.root, dir, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func readDocument(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

func writeDocument(path string, in any) error {
	raw, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", tmp, err)
	}

	return nil
}
