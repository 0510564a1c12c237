package vfs

import "strings"

// RelativePath computes the POSIX-style relative path that leads from the
// directory containing from to the object named by to.
//
// The shared prefix up to the last common '/' is dropped; every directory
// level remaining in from after that point contributes one "../"; the
// unshared suffix of to is appended. Both arguments are expected in
// absolute form.
//
//	RelativePath("/mnt/l", "/mnt/t.txt")       == "t.txt"
//	RelativePath("/a/b/c", "/a/d/e")           == "../d/e"
//	RelativePath("/a/x", "/a/x")               == "x" (self, same directory)
func RelativePath(from, to string) string {
	// Find the longest common prefix that ends on a component boundary.
	max := len(from)
	if len(to) < max {
		max = len(to)
	}

	i := 0
	for i < max && from[i] == to[i] {
		i++
	}

	// Back up to the last '/' inside the common prefix so partial
	// component matches ("/mnt/abc" vs "/mnt/abd") do not count.
	common := strings.LastIndex(from[:i], "/")
	if common < 0 {
		common = 0
	}

	suffixFrom := strings.Trim(from[common:], "/")
	suffixTo := strings.Trim(to[common:], "/")

	// Each directory level of from beyond the common prefix (excluding
	// from's own final component) becomes one "..".
	ups := 0
	if suffixFrom != "" {
		ups = strings.Count(suffixFrom, "/")
	}

	var b strings.Builder
	for i := 0; i < ups; i++ {
		b.WriteString("../")
	}
	b.WriteString(suffixTo)

	if b.Len() == 0 {
		return "."
	}
	return b.String()
}
