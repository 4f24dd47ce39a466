package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ormasoftchile/steplab/pkg/schema"
)

// Draft is the admin payload for creating or replacing a question.
// Nil fields are left unchanged on Update.
type Draft struct {
	ID          string             `json:"id"`
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Steps       []string           `json:"steps,omitempty"`
	Validations schema.Validations `json:"validations,omitempty"`
}

// DefaultTitle is used when a question is created without one.
const DefaultTitle = "New Question"

const seedStep = "# Step 1: Create your namespace\n\n" +
	"Create a project for this exercise with `oc new-project <name>` and enter the same name in the namespace field.\n\n" +
	"When `oc project -q` prints your namespace, run the check to verify and move on to the next step.\n"

// Create writes a new question directory. Without steps it is seeded with a
// placeholder steps/1.md and an empty validation.json.
func (c *Catalog) Create(d Draft) (*schema.Question, error) {
	if !schema.ValidID(d.ID) {
		return nil, fmt.Errorf("%q: %w", d.ID, ErrInvalidID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.dir(d.ID)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("question %q: %w", d.ID, ErrExists)
	}
	if err := os.MkdirAll(filepath.Join(dir, "steps"), 0o755); err != nil {
		return nil, fmt.Errorf("create question %q: %w", d.ID, err)
	}

	meta := schema.Metadata{Title: DefaultTitle}
	if d.Title != nil {
		meta.Title = *d.Title
	}
	if d.Description != nil {
		meta.Description = *d.Description
	}
	if err := writeJSON(filepath.Join(dir, "metadata.json"), meta); err != nil {
		return nil, err
	}

	steps := d.Steps
	if len(steps) == 0 {
		steps = []string{seedStep}
	}
	if err := writeSteps(dir, steps); err != nil {
		return nil, err
	}

	validations := d.Validations
	if validations == nil {
		validations = schema.Validations{}
	}
	if err := writeJSON(filepath.Join(dir, "validation.json"), validations); err != nil {
		return nil, err
	}
	return c.load(d.ID)
}

// Update replaces metadata, steps, or validations of an existing question.
func (c *Catalog) Update(d Draft) (*schema.Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireQuestion(d.ID); err != nil {
		return nil, err
	}
	dir := c.dir(d.ID)

	if d.Title != nil || d.Description != nil {
		meta, err := c.loadMetadata(d.ID)
		if err != nil {
			return nil, err
		}
		if d.Title != nil {
			meta.Title = *d.Title
		}
		if d.Description != nil {
			meta.Description = *d.Description
		}
		// metadata.json wins over metadata.yaml, so writing it is enough.
		if err := writeJSON(filepath.Join(dir, "metadata.json"), meta); err != nil {
			return nil, err
		}
	}

	if d.Steps != nil {
		stepsDir := filepath.Join(dir, "steps")
		if err := os.RemoveAll(stepsDir); err != nil {
			return nil, fmt.Errorf("clear steps: %w", err)
		}
		if err := os.MkdirAll(stepsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create steps: %w", err)
		}
		if err := writeSteps(dir, d.Steps); err != nil {
			return nil, err
		}
	}

	if d.Validations != nil {
		for _, name := range []string{"validation.yaml", "validation.yml"} {
			_ = os.Remove(filepath.Join(dir, name))
		}
		if err := writeJSON(filepath.Join(dir, "validation.json"), d.Validations); err != nil {
			return nil, err
		}
	}
	return c.load(d.ID)
}

// Delete removes a question directory.
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireQuestion(id); err != nil {
		return err
	}
	if err := os.RemoveAll(c.dir(id)); err != nil {
		return fmt.Errorf("delete question %q: %w", id, err)
	}
	return nil
}

func writeSteps(dir string, steps []string) error {
	for i, content := range steps {
		path := filepath.Join(dir, "steps", strconv.Itoa(i+1)+".md")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write step %d: %w", i+1, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
