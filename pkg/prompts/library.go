// Package prompts resolves per-node system prompts.
//
// Prompts live as markdown documents with typed frontmatter in a directory
// loaded through loam, so operators can tune phrasing without rebuilding.
// Every LLM-facing node has a compiled-in default; a directory document with
// the node's identifier overrides it.
package prompts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"

	"github.com/quarrydata/quarry/pkg/domain"
)

// Doc is the frontmatter of one prompt document.
type Doc struct {
	Description string  `json:"description" yaml:"description" mapstructure:"description"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// Prompt is one resolved system prompt.
type Prompt struct {
	ID          string
	Description string
	Temperature float64
	Text        string
}

// Library resolves node identifiers to prompts. The zero value serves the
// compiled-in defaults.
type Library struct {
	repo *loam.TypedRepository[Doc]
}

// Builtin returns a library serving only the compiled-in prompts.
func Builtin() *Library { return &Library{} }

// Open loads a prompt directory as a read-only loam repository. An empty dir
// yields a defaults-only library.
func Open(dir string) (*Library, error) {
	if dir == "" {
		return &Library{}, nil
	}
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("prompts: resolve %q: %w", dir, err)
	}
	repo, err := loam.Init(absPath,
		loam.WithReadOnly(true),
		loam.WithVersioning(false),
	)
	if err != nil {
		return nil, fmt.Errorf("prompts: open %q: %w", dir, err)
	}
	return &Library{repo: loam.NewTypedRepository[Doc](repo)}, nil
}

// Get returns the prompt for a node. Directory documents win over builtins;
// a node with neither is an error (the graph is wired against a prompt that
// does not exist).
func (l *Library) Get(ctx context.Context, id domain.NodeID) (*Prompt, error) {
	if l.repo != nil {
		doc, err := l.repo.Get(ctx, string(id))
		if err == nil {
			return &Prompt{
				ID:          string(id),
				Description: doc.Data.Description,
				Temperature: doc.Data.Temperature,
				Text:        strings.TrimSpace(doc.Content),
			}, nil
		}
		// Not present in the directory (or unreadable): serve the builtin
		// when one exists, otherwise surface the repository error.
		if p, ok := builtin[id]; ok {
			cp := p
			return &cp, nil
		}
		return nil, fmt.Errorf("prompts: load %q: %w", id, err)
	}

	if p, ok := builtin[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, fmt.Errorf("prompts: no document for node %q", id)
}

// WriteDefaults seeds a directory with the compiled-in prompt documents,
// giving operators a starting point to edit.
func WriteDefaults(dir string) error {
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return fmt.Errorf("prompts: init %q: %w", dir, err)
	}
	typed := loam.NewTypedRepository[Doc](repo)
	ctx := context.Background()

	for id, p := range builtin {
		err := typed.Save(ctx, &loam.DocumentModel[Doc]{
			ID:      string(id),
			Content: p.Text,
			Data: Doc{
				Description: p.Description,
				Temperature: p.Temperature,
			},
		})
		if err != nil {
			return fmt.Errorf("prompts: seed %q: %w", id, err)
		}
	}
	return nil
}
