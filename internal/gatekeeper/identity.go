package gatekeeper

import "strings"

// Storage keys for documents follow uploads/<source>/<documentId>/<fileName>.
// The identity scheme is coupled to that naming convention, so the parse is
// kept here as a pure function with an explicit fallback at the caller.

// DocumentIDFromKey derives the document identity from a storage key by
// positional parsing. It returns ok=false when the key does not match the
// expected shape, in which case the caller mints a fresh identity.
func DocumentIDFromKey(key string) (string, bool) {
	segments := strings.Split(key, "/")
	if len(segments) != 4 {
		return "", false
	}
	if segments[0] != "uploads" {
		return "", false
	}
	for _, seg := range segments[1:] {
		if seg == "" {
			return "", false
		}
	}
	return segments[2], true
}

// SourceKey builds the storage key for a document uploaded through the API
// surface.
func SourceKey(source, documentID, fileName string) string {
	return strings.Join([]string{"uploads", source, documentID, fileName}, "/")
}
