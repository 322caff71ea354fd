package types

import "strings"

// PathSeparator separates group names in an archive path.
const PathSeparator = "/"

// SplitPath breaks an archive path into its group name segments.
// Leading and trailing separators are ignored; an empty or root path
// yields no segments.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, PathSeparator)
	if trimmed == "" {
		return nil, nil
	}
	segments := strings.Split(trimmed, PathSeparator)
	for _, seg := range segments {
		if seg == "" {
			return nil, ErrEmptyPathSegment
		}
		if seg == "." || seg == ".." {
			return nil, ErrInvalidPathSegment
		}
	}
	return segments, nil
}

// JoinPath assembles segments into a canonical archive path rooted at "/".
func JoinPath(segments ...string) string {
	return PathSeparator + strings.Join(segments, PathSeparator)
}

// ValidName reports whether name is usable as a group or array name.
// Names may not be empty, contain the path separator, or be a dot segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.Contains(name, PathSeparator)
}
