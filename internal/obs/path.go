package obs

import "strings"

// CanonicalPath collapses identifier segments so metric labels stay bounded.
// Unknown paths are kept as-is; they are all registered routes in practice.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/v1/people/") && p != "/v1/people/export" {
		return "/v1/people/:id"
	}
	return p
}
