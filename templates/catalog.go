// Package templates implements the TemplateCatalog collaborator the
// Preparation Service resolves `{kind: template}` sources against, the same
// embed.FS-plus-directory-override shape haasonsaas-nexus's own templates
// package uses for its builtin registry.
package templates

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/chatforge/workflow/workflow"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Catalog implements workflow.TemplateCatalog over a set of named
// blueprint templates: the built-ins compiled into the binary, optionally
// overlaid by a directory of operator-supplied YAML files of the same
// shape (a later directory entry with the same base name wins, mirroring
// how an operator overrides a builtin prompt template on disk).
type Catalog struct {
	mu    sync.RWMutex
	files map[string][]byte // template name -> raw YAML template text
}

// NewCatalog returns a Catalog populated from the embedded builtin
// templates only.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{files: map[string][]byte{}}
	if err := c.loadFS(builtinFS, "builtin"); err != nil {
		return nil, fmt.Errorf("load builtin templates: %w", err)
	}
	return c, nil
}

// LoadDir overlays every *.yaml/*.yml file in dir onto the catalog, keyed
// by file base name without extension. A missing dir is not an error —
// callers that never configured templates.dir just keep the builtins.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read template dir %s: %w", dir, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ext)
		c.files[name] = data
	}
	return nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.Join(root, e.Name()))
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(e.Name(), ext)
		c.files[name] = data
	}
	return nil
}

// Resolve expands name's template text with params via text/template, then
// parses the result as a WorkflowBlueprint. Missing params render as their
// Go zero value ("<no value>" for a string field), the same behavior
// text/template always has without a Missingkey option — blueprint authors
// are expected to guard optional params with {{if .x}}.
func (c *Catalog) Resolve(ctx context.Context, name string, params map[string]interface{}) (*workflow.WorkflowBlueprint, error) {
	c.mu.RLock()
	raw, ok := c.files[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no template named %q", name)
	}

	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("expand template %q: %w", name, err)
	}

	var blueprint workflow.WorkflowBlueprint
	if err := yaml.Unmarshal(buf.Bytes(), &blueprint); err != nil {
		return nil, fmt.Errorf("parse blueprint from template %q: %w", name, err)
	}
	if blueprint.ID == "" {
		blueprint.ID = name
	}
	return &blueprint, nil
}

// Names returns every known template name, builtin and directory-loaded.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	return names
}
