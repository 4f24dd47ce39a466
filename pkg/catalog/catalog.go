// Package catalog serves questions from a directory tree:
//
//	<root>/<id>/metadata.{json,yaml}
//	<root>/<id>/steps/<n>.md
//	<root>/<id>/validation.{json,yaml}
//
// Reads are safe for concurrent use. Admin writes are serialized per catalog.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ormasoftchile/steplab/pkg/schema"
)

var (
	// ErrNotFound is returned when a question, step, or check does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a question whose directory exists.
	ErrExists = errors.New("already exists")
	// ErrInvalidID is returned for IDs outside [A-Za-z0-9-]+.
	ErrInvalidID = errors.New("question ID must contain only letters, numbers, and hyphens")
)

// Summary is the list-view projection of a question.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Catalog is a directory-backed question store.
type Catalog struct {
	root string
	mu   sync.RWMutex
}

// New returns a catalog rooted at dir. The directory is not required to
// exist until the first read.
func New(dir string) *Catalog {
	return &Catalog{root: dir}
}

// Root returns the catalog directory.
func (c *Catalog) Root() string {
	return c.root
}

// List returns every question directory, sorted by ID.
func (c *Catalog) List() ([]Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("questions directory %q: %w", c.root, ErrNotFound)
		}
		return nil, fmt.Errorf("read questions directory: %w", err)
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !schema.ValidID(e.Name()) {
			continue
		}
		meta, err := c.loadMetadata(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{ID: e.Name(), Title: meta.Title, Description: meta.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get loads a question with its steps and validations.
func (c *Catalog) Get(id string) (*schema.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.load(id)
}

// Check returns the validation check for a 1-based step number.
func (c *Catalog) Check(id string, step int) (*schema.Check, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.requireQuestion(id); err != nil {
		return nil, err
	}
	validations, err := c.loadValidations(id)
	if err != nil {
		return nil, err
	}
	if validations == nil {
		return nil, fmt.Errorf("question %q validation: %w", id, ErrNotFound)
	}
	check, ok := validations[strconv.Itoa(step)]
	if !ok || check == nil || strings.TrimSpace(check.Command) == "" {
		return nil, fmt.Errorf("step %d for question %q: %w", step, id, ErrNotFound)
	}
	return check, nil
}

func (c *Catalog) dir(id string) string {
	return filepath.Join(c.root, id)
}

func (c *Catalog) requireQuestion(id string) error {
	if !schema.ValidID(id) {
		return fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	info, err := os.Stat(c.dir(id))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	return nil
}

func (c *Catalog) load(id string) (*schema.Question, error) {
	if err := c.requireQuestion(id); err != nil {
		return nil, err
	}
	meta, err := c.loadMetadata(id)
	if err != nil {
		return nil, err
	}
	steps, err := c.loadSteps(id)
	if err != nil {
		return nil, err
	}
	validations, err := c.loadValidations(id)
	if err != nil {
		return nil, err
	}
	return &schema.Question{
		ID:          id,
		Title:       meta.Title,
		Description: meta.Description,
		Steps:       steps,
		Validations: validations,
	}, nil
}

// loadMetadata falls back to the ID as title when no metadata file exists.
func (c *Catalog) loadMetadata(id string) (*schema.Metadata, error) {
	path, ok := firstExisting(c.dir(id), "metadata.json", "metadata.yaml", "metadata.yml")
	if !ok {
		return &schema.Metadata{Title: id}, nil
	}
	meta, err := schema.LoadMetadataFile(path)
	if err != nil {
		return nil, fmt.Errorf("question %q metadata: %w", id, err)
	}
	if meta.Title == "" {
		meta.Title = id
	}
	return meta, nil
}

func (c *Catalog) loadSteps(id string) ([]schema.Step, error) {
	stepsDir := filepath.Join(c.dir(id), "steps")
	entries, err := os.ReadDir(stepsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []schema.Step{}, nil
		}
		return nil, fmt.Errorf("question %q steps: %w", id, err)
	}

	type numbered struct {
		n    int
		name string
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".md")
		n, err := strconv.Atoi(stem)
		if err != nil {
			return nil, fmt.Errorf("question %q step file %q: stem is not a number", id, e.Name())
		}
		files = append(files, numbered{n: n, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	steps := make([]schema.Step, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(stepsDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("question %q step %d: %w", id, f.n, err)
		}
		steps = append(steps, schema.Step{ID: strconv.Itoa(f.n), Content: string(data)})
	}
	return steps, nil
}

// loadValidations returns nil (no error) when the question has no
// validation file.
func (c *Catalog) loadValidations(id string) (schema.Validations, error) {
	path, ok := firstExisting(c.dir(id), "validation.json", "validation.yaml", "validation.yml")
	if !ok {
		return nil, nil
	}
	v, err := schema.LoadValidationsFile(path)
	if err != nil {
		return nil, fmt.Errorf("question %q validation: %w", id, err)
	}
	return v, nil
}

func firstExisting(dir string, names ...string) (string, bool) {
	for _, n := range names {
		p := filepath.Join(dir, n)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
