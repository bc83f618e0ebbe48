package template

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ExtractVariables returns the distinct placeholder tokens found in the
// HEADER and BODY components, ordered by CompareTokens.
func ExtractVariables(components []Component) []string {
	seen := make(map[string]struct{})
	var vars []string

	for _, c := range components {
		if !strings.EqualFold(c.Type, ComponentHeader) && !strings.EqualFold(c.Type, ComponentBody) {
			continue
		}
		for _, m := range varPattern.FindAllStringSubmatch(c.Text, -1) {
			token := strings.TrimSpace(m[1])
			if token == "" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			vars = append(vars, token)
		}
	}

	sort.SliceStable(vars, func(i, j int) bool {
		return CompareTokens(vars[i], vars[j]) < 0
	})
	return vars
}

// CompareTokens orders two tokens numerically when both are integers and
// lexicographically otherwise. Mixed pairs fall back to string order, so the
// relation is not a strict total order over mixed sets.
func CompareTokens(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	}
	return strings.Compare(a, b)
}
