// Package template renders ${var} placeholders in code scaffolds
// produced by the codegen workflow.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// bracePattern matches ${varname}; varname is alphanumeric plus underscore.
var bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// MissingAction controls what happens when a placeholder has no value.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as-is.
	MissingKeep MissingAction = iota
	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty
	// MissingError makes Expand return an UndefinedVariableError.
	MissingError
)

// Expander expands ${var} placeholders in strings.
// It is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets the behavior for placeholders without values.
func WithMissingAction(a MissingAction) Option {
	return func(e *Expander) { e.missingAction = a }
}

// NewExpander creates an Expander. The default keeps unknown
// placeholders as-is.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missingAction: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces ${var} placeholders in s with values from vars.
// An error is returned only with MissingError and an unknown variable.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	result := bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
			return match
		default:
			return match
		}
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// Scaffold is a set of file templates keyed by relative path. Both
// paths and contents may contain ${var} placeholders.
type Scaffold map[string]string

// Render expands every path and content in the scaffold. Rendering is
// strict: an unknown placeholder anywhere fails the whole scaffold.
func (s Scaffold) Render(vars map[string]any) (map[string]string, error) {
	exp := NewExpander(WithMissingAction(MissingError))

	out := make(map[string]string, len(s))
	for path, content := range s {
		renderedPath, err := exp.Expand(path, vars)
		if err != nil {
			return nil, fmt.Errorf("render path %q: %w", path, err)
		}
		renderedContent, err := exp.Expand(content, vars)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", path, err)
		}
		out[renderedPath] = renderedContent
	}
	return out, nil
}

// Paths returns the scaffold's template paths, sorted.
func (s Scaffold) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// UndefinedVariableError is returned when MissingError is set and one
// or more placeholders have no value.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// defaultExpander is the package-level expander with default settings.
var defaultExpander = NewExpander()

// Expand expands ${var} placeholders using the default expander.
// Missing variables stay as-is.
func Expand(s string, vars map[string]any) string {
	result, _ := defaultExpander.Expand(s, vars)
	return result
}
