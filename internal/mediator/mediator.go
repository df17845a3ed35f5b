// Package mediator is the single gate between callers and directory data:
// authenticate, authorize, apply the role policy, audit. Handlers never touch
// the dataset or the audit trail except through it.
package mediator

import (
	"context"
	"errors"
	"strings"
	"time"

	"dirsentry.org/internal/audit"
	"dirsentry.org/internal/auth"
	"dirsentry.org/internal/directory"
	"dirsentry.org/internal/obs"
	"dirsentry.org/internal/policy"
	"dirsentry.org/internal/sso"
)

// DataSource supplies the current directory snapshot.
type DataSource interface {
	Snapshot(ctx context.Context) (*directory.Dataset, error)
}

// Mediator routes every data operation through the same sequence. Denials
// carry only the authentication/authorization distinction; they never explain
// which rule matched.
type Mediator struct {
	local  *auth.Authenticator
	sso    *sso.Authenticator
	engine *policy.Engine
	sink   *audit.Sink
	source DataSource
	logs   audit.Reader
	now    func() time.Time
}

// Config collects the mediator's collaborators. SSO and Logs are optional;
// everything else is required.
type Config struct {
	Local  *auth.Authenticator
	SSO    *sso.Authenticator
	Engine *policy.Engine
	Sink   *audit.Sink
	Source DataSource
	Logs   audit.Reader
}

// New validates and wires the mediator.
func New(cfg Config) (*Mediator, error) {
	if cfg.Local == nil {
		return nil, errors.New("mediator: local authenticator is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("mediator: policy engine is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("mediator: audit sink is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("mediator: data source is required")
	}
	return &Mediator{
		local:  cfg.Local,
		sso:    cfg.SSO,
		engine: cfg.Engine,
		sink:   cfg.Sink,
		source: cfg.Source,
		logs:   cfg.Logs,
		now:    time.Now,
	}, nil
}

// Login authenticates a local principal and issues a session.
func (m *Mediator) Login(ctx context.Context, identifier, secret string) (*auth.Session, error) {
	return m.local.Authenticate(ctx, identifier, secret)
}

// Authenticate resolves a bearer token to a live session. The federated path
// claims only tokens in its session registry and audits its own refresh
// failures; everything it does not recognize falls through to local.Verify,
// which owns the audit record for that outcome. Either way one record is
// written per call.
func (m *Mediator) Authenticate(ctx context.Context, token string) (*auth.Session, error) {
	if m.sso != nil {
		sess, err := m.sso.Verify(ctx, token)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, err
		}
	}
	return m.local.Verify(ctx, token)
}

// Refresh rotates the session token. Federated sessions refresh against the
// provider inside Verify; local sessions rotate the signed token directly.
func (m *Mediator) Refresh(ctx context.Context, token string) (*auth.Session, error) {
	if m.sso != nil {
		sess, err := m.sso.Verify(ctx, token)
		if err == nil {
			return sess, nil
		}
		// An expired federated session was already destroyed and recorded.
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, err
		}
	}
	return m.local.Refresh(ctx, token)
}

// Logout ends the session behind the token. For federated sessions the
// provider end-session URL is returned for the client to follow.
func (m *Mediator) Logout(ctx context.Context, token string) (string, error) {
	if m.sso != nil {
		sess, err := m.sso.Verify(ctx, token)
		if err == nil {
			return m.sso.Logout(ctx, sess), nil
		}
		// An expired federated session was already destroyed and recorded.
		if errors.Is(err, auth.ErrExpiredToken) {
			return "", err
		}
	}
	sess, err := m.local.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	m.local.Logout(ctx, sess)
	return "", nil
}

// People returns the caller's view of the directory, optionally narrowed by a
// search term. The term is sanitized before it touches any row.
func (m *Mediator) People(ctx context.Context, token, search string) (*directory.Dataset, error) {
	sess, err := m.authorize(ctx, token, policy.ResourcePeopleData)
	if err != nil {
		return nil, err
	}

	data, err := m.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	term := policy.SanitizeSearchTerm(search)
	if term != "" {
		data = searchRows(data, term)
	}
	view := m.engine.Apply(data, sess.Principal.Role, policy.PrincipalContext{Identifier: sess.Principal.ID})

	filters := map[string]any{}
	if term != "" {
		filters["search"] = term
	}
	m.sink.DataAccess(ctx, auditContext(sess), policy.ResourcePeopleData, filters)
	obs.ObserveAccessDecision(policy.ResourcePeopleData, true)
	return view, nil
}

// Export produces the sanitized, provenance-stamped export of the caller's
// view. A denied export leaves no DATA_EXPORT trace, only the denial event.
func (m *Mediator) Export(ctx context.Context, token string) (*policy.Export, error) {
	sess, err := m.authorize(ctx, token, policy.ResourceExport)
	if err != nil {
		return nil, err
	}

	data, err := m.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	// Scope rows only; SanitizeExport strips credential columns and then
	// applies the role's masking tier once.
	view := m.engine.Scope(data, sess.Principal.Role, policy.PrincipalContext{Identifier: sess.Principal.ID})
	export := m.engine.SanitizeExport(view, sess.Principal.Role, m.now())

	m.sink.DataExport(ctx, auditContext(sess), policy.ResourcePeopleData, export.Data.Len(), "json")
	obs.ObserveAccessDecision(policy.ResourceExport, true)
	return export, nil
}

// Summary returns org-wide counts by department and seniority. The rollup
// carries no per-person fields, so it is served whole to any principal with
// analytics access.
func (m *Mediator) Summary(ctx context.Context, token string) (map[string]map[string]int, error) {
	sess, err := m.authorize(ctx, token, policy.ResourceAnalytics)
	if err != nil {
		return nil, err
	}

	data, err := m.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := map[string]map[string]int{
		"department": data.Summary(directory.ColDept),
		"seniority":  data.Summary(directory.ColSeniority),
	}
	m.sink.DataAccess(ctx, auditContext(sess), policy.ResourceAnalytics, nil)
	obs.ObserveAccessDecision(policy.ResourceAnalytics, true)
	return out, nil
}

// AuditLog returns the most recent audit records for principals holding
// view_audit.
func (m *Mediator) AuditLog(ctx context.Context, token string, limit int) ([]audit.Record, error) {
	sess, err := m.authorize(ctx, token, policy.ResourceAuditLogs)
	if err != nil {
		return nil, err
	}
	if m.logs == nil {
		return nil, auth.ErrNotFound
	}
	records, err := m.logs.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	m.sink.DataAccess(ctx, auditContext(sess), policy.ResourceAuditLogs, map[string]any{"limit": limit})
	obs.ObserveAccessDecision(policy.ResourceAuditLogs, true)
	return records, nil
}

// authorize runs the shared authenticate-then-check prefix. An authn failure
// surfaces the token error; an authz failure is always ErrPermissionDenied.
func (m *Mediator) authorize(ctx context.Context, token, category string) (*auth.Session, error) {
	sess, err := m.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !policy.CheckAccess(sess.Principal, category) {
		obs.ObserveAccessDecision(category, false)
		m.sink.SecurityEvent(ctx, auditContext(sess), "access denied to "+category, audit.SeverityWarning)
		return nil, auth.ErrPermissionDenied
	}
	return sess, nil
}

func auditContext(sess *auth.Session) audit.Context {
	return audit.Context{
		PrincipalID: sess.Principal.ID,
		Role:        sess.Principal.Role.String(),
		SessionID:   sess.ID,
	}
}

// searchRows keeps rows where any cell contains the term, case-insensitive.
func searchRows(d *directory.Dataset, term string) *directory.Dataset {
	lower := strings.ToLower(term)
	return d.SelectRows(func(i int) bool {
		for _, cell := range d.Rows[i] {
			if strings.Contains(strings.ToLower(cell), lower) {
				return true
			}
		}
		return false
	})
}
