package collect

import "strings"

// IsThirdParty classifies a JAR by name: internal if it starts with one of
// the configured prefixes (case-insensitive), third-party otherwise.
// Third-party JARs are still listed and versioned, just not decompiled
// by default.
func IsThirdParty(jarName string, internalPrefixes []string) bool {
	lower := strings.ToLower(jarName)
	for _, p := range internalPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return false
		}
	}
	return true
}

// ClassFullName derives the fully-qualified class name from a path below
// the classes directory: slashes become dots and the .class suffix is
// stripped. Inner-class '$' separators stay verbatim. Returns "" when the
// path is not a class file.
func ClassFullName(relPath string) string {
	if !strings.HasSuffix(relPath, ".class") {
		return ""
	}
	name := strings.TrimSuffix(relPath, ".class")
	name = strings.Trim(name, "/")
	if name == "" {
		return ""
	}
	return strings.ReplaceAll(name, "/", ".")
}
