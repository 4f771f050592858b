package patterns

import (
	"regexp"
	"sort"
)

// builtins is the fixed table of default patterns keyed by type name
var builtins = map[string]Pattern{
	TypeURL: {
		Name:        TypeURL,
		Expression:  `(?i)(https?://|www\.)[-a-zA-Z0-9@:%._+~#=]{2,256}\.[a-z]{2,6}\b([-a-zA-Z0-9@:%_+.~#?&/=]*)`,
		Description: "http(s) or www. prefixed links with optional path, query and fragment",
	},
	TypePhone: {
		Name:        TypePhone,
		Expression:  `[+]?[(]?[0-9]{3}[)]?[-\s.]?[0-9]{3}[-\s.]?[0-9]{4,7}`,
		Description: "phone numbers with optional +, parenthesized area code and - . or space separators",
	},
	TypeEmail: {
		Name:        TypeEmail,
		Expression:  `\S+@\S+\.\S+`,
		Description: "permissive email heuristic: token@token.token",
	},
}

// Registry resolves built-in type names to compiled patterns.
// The table is fixed; a Registry only adds the lookup API around it.
type Registry struct {
	patterns map[string]Pattern
}

var defaultRegistry = &Registry{patterns: builtins}

// Default returns the registry holding the built-in url, phone and email patterns
func Default() *Registry {
	return defaultRegistry
}

// Resolve compiles the default pattern for the given type name.
// A fresh *regexp.Regexp is returned on every call.
func (r *Registry) Resolve(name string) (*regexp.Regexp, error) {
	p, ok := r.patterns[name]
	if !ok {
		return nil, &UnsupportedPatternTypeError{Name: name}
	}
	return regexp.MustCompile(p.Expression), nil
}

// Expression returns the regular expression source for a type name
func (r *Registry) Expression(name string) (string, error) {
	p, ok := r.patterns[name]
	if !ok {
		return "", &UnsupportedPatternTypeError{Name: name}
	}
	return p.Expression, nil
}

// Has reports whether name is a known type
func (r *Registry) Has(name string) bool {
	_, ok := r.patterns[name]
	return ok
}

// Names returns the known type names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every pattern definition sorted by name
func (r *Registry) List() []Pattern {
	list := make([]Pattern, 0, len(r.patterns))
	for _, name := range r.Names() {
		list = append(list, r.patterns[name])
	}
	return list
}

// Resolve looks up name in the default registry
func Resolve(name string) (*regexp.Regexp, error) {
	return defaultRegistry.Resolve(name)
}

// Names lists the default registry's type names
func Names() []string {
	return defaultRegistry.Names()
}
