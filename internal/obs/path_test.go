package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/people":                "/v1/people",
		"/v1/people/export":         "/v1/people/export",
		"/v1/people/jdoe":           "/v1/people/:id",
		"/v1/summary?refresh=true":  "/v1/summary",
		"/v1/auth/sso/callback":     "/v1/auth/sso/callback",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
