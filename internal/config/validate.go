package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// ValidationError lists every schema violation found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems):\n  %s",
		len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// Validate checks c against the embedded CUE schema and for duplicate core
// names.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)

	var problems []string
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		for _, e := range errors.Errors(err) {
			problems = append(problems, formatProblem(e))
		}
	}

	seen := make(map[string]bool, len(c.Cores))
	for _, core := range c.Cores {
		if seen[core.Name] {
			problems = append(problems, fmt.Sprintf("cores: duplicate core name %q", core.Name))
		}
		seen[core.Name] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// formatProblem renders a CUE error as "path: message".
func formatProblem(e errors.Error) string {
	parts := e.Path()
	if len(parts) > 0 && strings.HasPrefix(parts[0], "#") {
		parts = parts[1:]
	}
	path := strings.Join(parts, ".")
	format, args := e.Msg()
	msg := fmt.Sprintf(format, args...)
	if path == "" {
		return msg
	}
	return path + ": " + msg
}
