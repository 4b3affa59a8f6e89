package server

import "testing"

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"/":        "",
		"  ":       "",
		"panel":    "/panel",
		"/panel/":  "/panel",
		" /a/b// ": "/a/b",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
