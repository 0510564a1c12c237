package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelativePath(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want string
	}{
		{"same directory", "/mnt/l", "/mnt/t.txt", "t.txt"},
		{"sibling subtree", "/a/b/c", "/a/d/e", "../d/e"},
		{"target below", "/a/l", "/a/sub/deep/file", "sub/deep/file"},
		{"target above", "/a/b/c/l", "/a/t", "../../t"},
		{"self", "/a/x", "/a/x", "x"},
		{"root level", "/l", "/t", "t"},
		{"shared name prefix", "/mnt/abc", "/mnt/abd", "abd"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RelativePath(tc.from, tc.to))
		})
	}
}
