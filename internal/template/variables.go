package template

import (
	"regexp"
	"strings"

	"github.com/sirenhq/siren/pkg/models"
)

var (
	// variablePattern matches {{variable_name}} with optional whitespace.
	variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	// placeholderPattern matches any {{ key }} placeholder, including keys that are
	// not valid declared variable names.
	placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	// validNamePattern validates variable names.
	validNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Rendered holds the concrete text produced from a template.
type Rendered struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Render replaces every {{ key }} placeholder whose key is present in variables.
// Matching is case-sensitive; unknown placeholders are left untouched and
// substituted values are never expanded again.
func Render(pattern string, variables map[string]string) string {
	if len(variables) == 0 || !strings.Contains(pattern, "{{") {
		return pattern
	}
	return placeholderPattern.ReplaceAllStringFunc(pattern, func(match string) string {
		submatches := placeholderPattern.FindStringSubmatch(match)
		if len(submatches) != 2 {
			return match
		}
		value, ok := variables[submatches[1]]
		if !ok {
			return match
		}
		return value
	})
}

// RenderTemplate expands both the title and content patterns of tmpl.
func RenderTemplate(tmpl *models.NotificationTemplate, variables map[string]string) Rendered {
	return Rendered{
		Title:   Render(tmpl.TitlePattern, variables),
		Content: Render(tmpl.ContentPattern, variables),
	}
}

// ValidName reports whether name can be declared as a template variable.
func ValidName(name string) bool {
	return validNamePattern.MatchString(name)
}

// ExtractVariableNames returns all unique variable names found in the pattern.
func ExtractVariableNames(pattern string) []string {
	matches := variablePattern.FindAllStringSubmatch(pattern, -1)
	seen := make(map[string]bool)
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		if len(m) == 2 && !seen[m[1]] {
			names = append(names, m[1])
			seen[m[1]] = true
		}
	}
	return names
}

// UndeclaredVariables returns the placeholders used by tmpl that are missing from
// its declared variable list.
func UndeclaredVariables(tmpl *models.NotificationTemplate) []string {
	declared := make(map[string]struct{}, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		declared[v] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{})
	for _, pattern := range []string{tmpl.TitlePattern, tmpl.ContentPattern} {
		for _, name := range ExtractVariableNames(pattern) {
			if _, ok := declared[name]; ok {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			missing = append(missing, name)
		}
	}
	return missing
}
