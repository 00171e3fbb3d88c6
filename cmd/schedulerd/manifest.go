package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kandev/taskscheduler/engine"
	"github.com/kandev/taskscheduler/internal/common/logger"
)

// Manifest is the optional on-disk list of tasks the daemon submits at
// startup. Entries may reference each other by name; references resolve
// to real task ids in declaration order, so a dependency must be
// declared before the task that uses it.
type Manifest struct {
	Tasks []ManifestTask `yaml:"tasks"`
}

// ManifestTask is one task entry in a Manifest.
type ManifestTask struct {
	Name         string            `yaml:"name"`
	Operation    ManifestSpec      `yaml:"operation"`
	Condition    ManifestSpec      `yaml:"condition"`
	Dependencies map[string]string `yaml:"dependencies"`
}

// ManifestSpec mirrors engine.Specification in YAML form.
type ManifestSpec struct {
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// submitManifest admits every manifest task in order, resolving named
// dependency references to the ids assigned by earlier admissions.
func submitManifest(ctx context.Context, eng *engine.Engine, m *Manifest, log *logger.Logger) error {
	ids := make(map[string]engine.TaskID, len(m.Tasks))

	for i, mt := range m.Tasks {
		deps := make(map[string]engine.TaskID, len(mt.Dependencies))
		for param, name := range mt.Dependencies {
			id, ok := ids[name]
			if !ok {
				return fmt.Errorf("manifest task %q: dependency %q is not declared earlier in the manifest", mt.Name, name)
			}
			deps[param] = id
		}

		pending, err := eng.Add(ctx, engine.AddRequest{
			Operation:    engine.Specification{Type: mt.Operation.Type, Parameters: mt.Operation.Parameters},
			Condition:    engine.Specification{Type: mt.Condition.Type, Parameters: mt.Condition.Parameters},
			Dependencies: deps,
		})
		if err != nil {
			return fmt.Errorf("manifest task %q: %w", mt.Name, err)
		}

		name := mt.Name
		if name == "" {
			name = fmt.Sprintf("task-%d", i)
		}
		ids[name] = pending.ID
		log.Info("submitted manifest task", zap.String("name", name), zap.String("task_id", pending.ID.String()))
	}
	return nil
}
