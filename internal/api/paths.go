package api

import "strings"

// splitPath strips the base path and returns the remaining clean segments.
func splitPath(urlPath, basePath string) []string {
	pp := strings.TrimPrefix(urlPath, basePath)
	pp = strings.TrimPrefix(pp, "/")
	parts := strings.Split(pp, "/")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 1 && parts[0] == "" {
		return nil
	}
	for _, p := range parts {
		if !safeSegment(p) {
			return nil
		}
	}
	return parts
}

// safeSegment rejects traversal and empty path elements.
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "\\")
}
