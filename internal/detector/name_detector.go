package detector

import "strings"

// NameDetector matches processes whose executable name equals Name,
// the way `pgrep -x` does.
type NameDetector struct{ Name string }

func (d NameDetector) Match(e ProcessEntry) bool {
	return d.Name != "" && e.Name == d.Name
}

func (d NameDetector) Describe() string { return "name:" + d.Name }

// CmdlineDetector matches processes whose full command line contains
// Substring, the way `pgrep -f` does. It is used for services started
// as multi-word invocations (e.g. "python -m http.server 8000").
type CmdlineDetector struct{ Substring string }

func (d CmdlineDetector) Match(e ProcessEntry) bool {
	return d.Substring != "" && strings.Contains(e.Cmdline, d.Substring)
}

func (d CmdlineDetector) Describe() string { return "cmdline:" + d.Substring }

// NamePatternDetector matches processes whose executable name contains
// Pattern, ignoring case, the way `pgrep -i` does. The pm2 daemon retitles
// itself ("PM2 v5.3.0: God Daemon"), so an exact name never sees it.
type NamePatternDetector struct{ Pattern string }

func (d NamePatternDetector) Match(e ProcessEntry) bool {
	return d.Pattern != "" && strings.Contains(strings.ToLower(e.Name), strings.ToLower(d.Pattern))
}

func (d NamePatternDetector) Describe() string { return "pattern:" + d.Pattern }
