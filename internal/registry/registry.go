// Package registry resolves workflow identifiers to immutable, runnable
// workflow structures. Definitions live on disk as YAML descriptors next to
// their backend-format workflow documents and are loaded once at startup.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/seqflow/pkg/model"
	"gopkg.in/yaml.v3"
)

// descriptor is the on-disk YAML form of a workflow definition.
type descriptor struct {
	ID         string                `yaml:"id"`
	Name       string                `yaml:"name"`
	Version    string                `yaml:"version"`
	Definition string                `yaml:"definition"` // backend workflow document, relative to the descriptor
	Inputs     []model.WorkflowInput `yaml:"inputs"`
}

// Registry holds the loaded workflow definitions.
type Registry struct {
	logger    *slog.Logger
	workflows map[string]*model.WorkflowStructure
}

// Load reads every *.yaml/*.yml descriptor under dir and validates that
// each names a readable, non-empty workflow document.
func Load(dir string, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		logger:    logger.With("component", "registry"),
		workflows: make(map[string]*model.WorkflowStructure),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		wf, err := loadDescriptor(path)
		if err != nil {
			return nil, fmt.Errorf("workflow descriptor %s: %w", name, err)
		}
		if _, dup := r.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("workflow descriptor %s: duplicate workflow id %q", name, wf.ID)
		}
		r.workflows[wf.ID] = wf
		r.logger.Debug("workflow loaded", "id", wf.ID, "name", wf.Name, "version", wf.Version)
	}

	r.logger.Info("workflow registry ready", "workflows", len(r.workflows))
	return r, nil
}

func loadDescriptor(path string) (*model.WorkflowStructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if d.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if d.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if d.Definition == "" {
		return nil, fmt.Errorf("missing definition")
	}

	defPath := d.Definition
	if !filepath.IsAbs(defPath) {
		defPath = filepath.Join(filepath.Dir(path), defPath)
	}
	definition, err := os.ReadFile(defPath)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", d.Definition, err)
	}
	if len(definition) == 0 {
		return nil, fmt.Errorf("definition %s is empty", d.Definition)
	}

	return &model.WorkflowStructure{
		ID:         d.ID,
		Name:       d.Name,
		Version:    d.Version,
		Inputs:     d.Inputs,
		Definition: definition,
	}, nil
}

// Resolve returns the workflow structure for id, or a NotFoundError if the
// registry holds no such workflow.
func (r *Registry) Resolve(id string) (*model.WorkflowStructure, error) {
	wf, ok := r.workflows[id]
	if !ok {
		return nil, model.NewNotFoundError("workflow", id)
	}
	return wf, nil
}

// IDs returns the identifiers of all loaded workflows.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	return ids
}
