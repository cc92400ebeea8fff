// Package policy implements C4's approval gate (§4.4 step 3): the
// allowlist/category/rate-limiter/user-prompt precedence chain that decides
// whether a tool call may execute.
package policy

import "strings"

// DefaultGroups are the named tool groups a CLI's --allow-category flag may
// reference in addition to a bare category string, reusing the teacher's
// group-naming convention ("group:fs", "group:web", ...) scoped down to the
// tool categories this core's dispatch pipeline actually declares.
var DefaultGroups = map[string][]string{
	"group:fs":      {"read_file", "write_file", "edit_file"},
	"group:shell":   {"shell_execute"},
	"group:web":     {"web_search", "web_fetch"},
	"group:subagent": {"subagent_spawn", "subagent_status"},
}

// NormalizeTool lowercases and trims a tool/category name for comparison.
func NormalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ExpandCategory resolves a --allow-category value (a bare category name or
// a "group:..." reference) to the set of tool names it grants.
func ExpandCategory(category string, toolsInCategory map[string][]string) []string {
	norm := NormalizeTool(category)
	if tools, ok := DefaultGroups[norm]; ok {
		return tools
	}
	return toolsInCategory[norm]
}

// matchToolPattern matches a "tool:pattern" allow entry's pattern half
// against an argument summary. A trailing "*" matches as a prefix; an exact
// pattern must match the summary exactly; an empty pattern matches any
// invocation of the tool.
func matchToolPattern(pattern, summary string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(summary, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == summary
}
