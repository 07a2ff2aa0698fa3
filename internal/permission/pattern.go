package permission

import (
	"path/filepath"
	"strings"
)

// toolAliases mirrors the teacher's internal/tools/policy.ToolAliases
// alternative tool names; it is defined locally because this module has
// no internal/tools/policy package — see DESIGN.md.
var toolAliases = map[string]string{
	"bash":        "exec",
	"shell":       "exec",
	"apply-patch": "edit",
	"apply_patch": "edit",
	"sandbox":     "execute_code",
	"websearch":   "web_search",
	"webfetch":    "web_fetch",
}

// normalizeTool lowercases and resolves aliases, grounded on
// internal/tools/policy.NormalizeTool.
func normalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := toolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// matchesTool reports whether toolName matches any pattern in the list,
// adapted from internal/agent/approval.go's matchesPattern: exact match,
// "prefix*", "*suffix", "*" (match all), and the "mcp:*" convention for
// MCP-sourced tools.
func matchesTool(patterns []string, toolName string) bool {
	normalizedTool := normalizeTool(toolName)
	for _, pattern := range patterns {
		if toolPattern(pattern) == "" {
			continue
		}
		if matchesOneToolPattern(toolPattern(pattern), normalizedTool) {
			return true
		}
	}
	return false
}

// matchesToolOrArgs reports whether toolName (alone) or the combination
// of toolName and the args' JSON text matches any pattern, supporting
// spec §4.D's "tool or tool+argument pattern" blacklist/whitelist rules.
// An arg-sensitive pattern has the form "tool::glob", where glob is
// matched against the raw JSON text of args with filepath.Match-style
// wildcards.
func matchesToolOrArgs(patterns []string, toolName string, args []byte) bool {
	normalizedTool := normalizeTool(toolName)
	for _, pattern := range patterns {
		tool, argGlob, hasArgGlob := splitArgPattern(pattern)
		if tool == "" {
			continue
		}
		if !matchesOneToolPattern(tool, normalizedTool) {
			continue
		}
		if !hasArgGlob {
			return true
		}
		if ok, _ := filepath.Match(argGlob, string(args)); ok {
			return true
		}
	}
	return false
}

func toolPattern(pattern string) string {
	tool, _, _ := splitArgPattern(pattern)
	return tool
}

// splitArgPattern separates a "tool::glob" pattern into its tool-name
// pattern and argument glob. Patterns without "::" have no argument
// component.
func splitArgPattern(pattern string) (tool string, argGlob string, hasArgGlob bool) {
	if pattern == "" {
		return "", "", false
	}
	if idx := strings.Index(pattern, "::"); idx >= 0 {
		return normalizeTool(pattern[:idx]), pattern[idx+2:], true
	}
	return normalizeTool(pattern), "", false
}

func matchesOneToolPattern(normalizedPattern, normalizedTool string) bool {
	switch {
	case normalizedPattern == "*":
		return true
	case normalizedPattern == normalizedTool:
		return true
	case normalizedPattern == "mcp:*" && strings.HasPrefix(normalizedTool, "mcp:"):
		return true
	case len(normalizedPattern) > 1 && normalizedPattern[len(normalizedPattern)-1] == '*':
		prefix := normalizedPattern[:len(normalizedPattern)-1]
		return strings.HasPrefix(normalizedTool, prefix)
	case len(normalizedPattern) > 1 && normalizedPattern[0] == '*':
		suffix := normalizedPattern[1:]
		return strings.HasSuffix(normalizedTool, suffix)
	default:
		return false
	}
}
