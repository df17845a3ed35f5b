// Package policy computes what a role may see. Apply is a pure function:
// filter first, then mask, both resolved through per-role dispatch tables.
// Filtering before masking means masking cost is paid only on visible rows.
package policy

import (
	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/directory"
)

// PrincipalContext carries the caller identity the row filter needs. The
// identifier is the directory uid (the local part when principals are keyed
// by email).
type PrincipalContext struct {
	Identifier string
}

// Engine holds the masking keyword sets and the per-role transform tables.
type Engine struct {
	keywords  keywordSets
	filterFor map[auth.Role]filterFunc
	maskFor   map[auth.Role]maskFunc
}

type filterFunc func(*directory.Dataset, PrincipalContext) *directory.Dataset
type maskFunc func(e *Engine, d *directory.Dataset) *directory.Dataset

// Option overrides engine defaults.
type Option func(*Engine)

// WithKeywords replaces the column-classification keyword set for one
// sensitive category.
func WithKeywords(category string, words []string) Option {
	return func(e *Engine) {
		if len(words) > 0 {
			e.keywords[category] = words
		}
	}
}

// NewEngine builds the policy engine. The role tables are the single
// dispatch point; no other code branches on role for data visibility.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{keywords: defaultKeywords()}
	e.filterFor = map[auth.Role]filterFunc{
		auth.RoleAdmin:   filterIdentity,
		auth.RoleManager: filterManagerTeam,
		auth.RoleViewer:  filterAggregate,
		auth.RoleAuditor: filterAggregate,
	}
	e.maskFor = map[auth.Role]maskFunc{
		auth.RoleAdmin:   maskIdentity,
		auth.RoleManager: maskManager,
		auth.RoleViewer:  maskFull,
		auth.RoleAuditor: maskFull,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply returns the view of d that role may see: row filter, then column
// mask. d itself is never mutated. An unknown role sees nothing.
func (e *Engine) Apply(d *directory.Dataset, role auth.Role, pctx PrincipalContext) *directory.Dataset {
	return e.mask(e.Scope(d, role, pctx), role)
}

// Scope runs only the row filter for role, leaving columns unmasked. The
// export path scopes first and masks once inside SanitizeExport, after
// credential columns are stripped; masking a dataset twice destroys the
// partial values the per-role rules keep.
func (e *Engine) Scope(d *directory.Dataset, role auth.Role, pctx PrincipalContext) *directory.Dataset {
	filter, ok := e.filterFor[role]
	if !ok {
		return directory.New(d.Columns...)
	}
	return filter(d, pctx)
}

// mask applies the role's column masking tier. Unknown roles get the full
// tier.
func (e *Engine) mask(d *directory.Dataset, role auth.Role) *directory.Dataset {
	fn, ok := e.maskFor[role]
	if !ok {
		fn = maskFull
	}
	return fn(e, d)
}
