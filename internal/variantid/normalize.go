package variantid

import "strings"

// Normalize canonicalizes inference variant names and their aliases.
// Unknown names come back lowercased and dash separated.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	if canonical, ok := normalizeKnownAlias(normalized); ok {
		return canonical
	}
	return normalized
}

func normalizeKnownAlias(normalized string) (string, bool) {
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalVariantName(candidate); ok {
			return canonical, true
		}
	}
	return "", false
}

func aliasCandidates(normalized string) []string {
	candidate := strings.TrimPrefix(normalized, "dgd-")
	candidate = strings.Trim(candidate, "-")

	candidates := []string{normalized}
	if candidate != "" && candidate != normalized {
		candidates = append(candidates, candidate)
	}

	trimmedCandidate := trimVariantSuffix(candidate)
	if trimmedCandidate != "" && trimmedCandidate != candidate {
		candidates = append(candidates, trimmedCandidate)
	}
	return candidates
}

func trimVariantSuffix(value string) string {
	switch {
	case strings.HasSuffix(value, "-variant"):
		return strings.TrimSuffix(value, "-variant")
	case strings.HasSuffix(value, "-dgd"):
		return strings.TrimSuffix(value, "-dgd")
	default:
		return value
	}
}

func canonicalVariantName(alias string) (string, bool) {
	compact := strings.ReplaceAll(alias, "-", "")
	switch compact {
	case "single", "sampleonly":
		return "single", true
	case "fixedcontext", "fixed":
		return "fixed-context", true
	case "joint":
		return "joint", true
	case "jointonehot", "onehot":
		return "joint-onehot", true
	default:
		return "", false
	}
}
