package ingest

import "strings"

// maxStorageNameLen bounds base name + extension of a storage key
// component. Long names break object paths on some backends.
const maxStorageNameLen = 200

// SanitizeFilename rewrites a client-supplied filename into a form safe
// for storage paths. The extension (after the last dot) is preserved
// exactly; the base name keeps only [A-Za-z0-9._-], runs of underscores
// are collapsed and trimmed, and the base is truncated so base+extension
// stays under the length ceiling. The original filename is kept
// separately in activity metadata for display, so only the storage key
// is sanitized. Idempotent.
func SanitizeFilename(filename string) string {
	name := filename
	ext := ""
	if i := strings.LastIndex(filename, "."); i > 0 {
		name = filename[:i]
		ext = filename[i:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	safe := b.String()

	for strings.Contains(safe, "__") {
		safe = strings.ReplaceAll(safe, "__", "_")
	}
	safe = strings.Trim(safe, "_")

	// The extension alone may exceed the ceiling; the base then drops
	// to nothing rather than underflowing the slice.
	maxLen := maxStorageNameLen - len(ext)
	if maxLen < 0 {
		maxLen = 0
	}
	if len(safe) > maxLen {
		safe = safe[:maxLen]
	}

	return safe + ext
}
