// Package strings normalizes the free-text identifiers that arrive in tokens,
// query strings and admin requests: role names, permission scopes and list
// parameters.
package strings

import (
	"strings"
	"unicode"
)

// CollapseSpace trims s and folds every internal whitespace run into a single
// space, so "  Branch \t Officer " becomes "Branch Officer".
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// DedupeNames normalizes role names with CollapseSpace and drops empties and
// case-insensitive duplicates. The first spelling seen wins and order is
// preserved.
//
// Example:
//
//	DedupeNames([]string{" Compliance ", "compliance", "Branch  Officer", ""})
//	// Returns: []string{"Compliance", "Branch Officer"}
func DedupeNames(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		name := CollapseSpace(v)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, name)
	}
	return result
}

// DedupeScopes lowercases permission scopes such as "workflow:cross_branch",
// dropping blanks and duplicates.
func DedupeScopes(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		scope := strings.ToLower(strings.TrimSpace(v))
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			result = append(result, scope)
		}
	}
	return result
}

// SplitList flattens query values that may be repeated (?status=a&status=b)
// or comma separated (?status=a,b). Blank entries are dropped.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
