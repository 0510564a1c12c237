package vfs

// nextComponent extracts the next path component starting at cursor.
//
// Leading separators are skipped, so consecutive slashes collapse into a
// single boundary. The returned start/end delimit the maximal non-empty
// run up to the next '/' or the end of the string; last is true when the
// component is terminated by the end of the string rather than another
// separator (trailing slashes count as end-of-path). ok is false when no
// component remains.
func nextComponent(path string, cursor int) (start, end int, last, ok bool) {
	for cursor < len(path) && path[cursor] == '/' {
		cursor++
	}
	if cursor >= len(path) {
		return 0, 0, false, false
	}

	start = cursor
	for cursor < len(path) && path[cursor] != '/' {
		cursor++
	}
	end = cursor

	for cursor < len(path) && path[cursor] == '/' {
		cursor++
	}
	last = cursor >= len(path)

	return start, end, last, true
}

// trimSlashes strips leading separators, normalizing a path suffix into
// the mount-relative form drivers expect.
func trimSlashes(path string) string {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	return path[i:]
}

// joinRel joins two mount-relative fragments, tolerating empty parts.
func joinRel(prefix, rest string) string {
	if prefix == "" {
		return rest
	}
	if rest == "" {
		return prefix
	}
	return prefix + "/" + rest
}

// lastComponent returns the final component of a path, ignoring trailing
// separators. Empty paths and all-separator paths return "".
func lastComponent(path string) string {
	end := len(path)
	for end > 0 && path[end-1] == '/' {
		end--
	}
	start := end
	for start > 0 && path[start-1] != '/' {
		start--
	}
	return path[start:end]
}
