package catalog

import (
	"path/filepath"

	"github.com/ormasoftchile/steplab/pkg/schema"
)

// Lint loads the question directory at dir and runs every validation
// phase on it. Load failures are reported as structural errors with a nil
// question.
func Lint(dir string) (*schema.Question, []*schema.ValidationError) {
	dir = filepath.Clean(dir)
	q, err := New(filepath.Dir(dir)).Get(filepath.Base(dir))
	if err != nil {
		return nil, []*schema.ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return q, schema.ValidateQuestion(q)
}
