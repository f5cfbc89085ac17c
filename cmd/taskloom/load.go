package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benbenlabs/taskloom/internal/graph"
	"github.com/benbenlabs/taskloom/internal/store"
	"github.com/benbenlabs/taskloom/internal/validation"
	"github.com/benbenlabs/taskloom/pkg/schema"
)

// loadWorkflows reads every workflow definition file from dir, validates it
// and builds its graph. Definitions fail fast: a single malformed file
// aborts startup before any task can be created. Loaded definitions are
// persisted so a crashed process can reconstruct its state.
func loadWorkflows(ctx context.Context, dir string, validator *validation.WorkflowValidator, s store.Store, logger *slog.Logger) (map[string]*graph.Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("workflows directory missing, starting without definitions", slog.String("dir", dir))
			return map[string]*graph.Graph{}, nil
		}
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}

	graphs := make(map[string]*graph.Graph)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		def, err := readDefinition(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}

		result := validator.Validate(def)
		for _, w := range result.Warnings {
			logger.Warn("workflow definition warning",
				slog.String("file", entry.Name()),
				slog.String("path", w.Path),
				slog.String("message", w.Message))
		}
		if err := result.ToError(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", entry.Name(), err)
		}

		g, err := graph.New(def)
		if err != nil {
			return nil, fmt.Errorf("build graph for %s: %w", entry.Name(), err)
		}
		if _, dup := graphs[def.Code]; dup {
			return nil, fmt.Errorf("duplicate workflow code %q in %s", def.Code, entry.Name())
		}
		graphs[def.Code] = g

		if err := s.PutWorkflow(ctx, &store.WorkflowRow{
			Code:       def.Code,
			Name:       def.Name,
			Desc:       def.Desc,
			Definition: *def,
		}); err != nil {
			return nil, fmt.Errorf("persist workflow %q: %w", def.Code, err)
		}
		logger.Info("workflow loaded",
			slog.String("code", def.Code),
			slog.Int("nodes", g.Len()),
			slog.String("file", entry.Name()))
	}
	return graphs, nil
}

// readDefinition parses a definition file. YAML is decoded generically and
// re-encoded as JSON so one set of struct tags serves both formats.
func readDefinition(path string) (*schema.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
	}

	def := &schema.WorkflowDefinition{}
	if err := json.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return def, nil
}
