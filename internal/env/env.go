// Package env composes process environments from KEY=VALUE lists.
package env

import "strings"

// Merge applies overrides to base in order and returns the result in
// "KEY=VALUE" form. Keys keep their first position; new keys are appended.
// ${VAR} in an override value expands against the environment composed so
// far, so "PATH=${PATH}:/opt/bin" extends the base value. Unknown references
// are left as is. Entries without '=' or with an empty key are dropped.
func Merge(base []string, overrides ...string) []string {
	var (
		keys []string
		vals = make(map[string]string, len(base)+len(overrides))
	)
	set := func(k, v string) {
		if _, ok := vals[k]; !ok {
			keys = append(keys, k)
		}
		vals[k] = v
	}
	for _, kv := range base {
		if k, v, ok := split(kv); ok {
			set(k, v)
		}
	}
	for _, kv := range overrides {
		if k, v, ok := split(kv); ok {
			set(k, expand(v, vals))
		}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+vals[k])
	}
	return out
}

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}

// expand replaces ${NAME} with vals[NAME] for known names.
func expand(s string, vals map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := vals[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}
