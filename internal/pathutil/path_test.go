package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"a", "/a"},
		{"/a", "/a"},
		{"/a/", "/a"},
		{"/a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/b/..", "/a"},
		{"/a/../b", "/b"},
		{"/../a", "/a"},
		{"/a/b/../../c", "/c"},
		{"a/b/c/", "/a/b/c"},
		{"/.", "/"},
		{"/..", "/"},
	} {
		assert.Equal(t, test.want, Canonicalize(test.in), "Canonicalize(%q)", test.in)
	}
}

// Canonicalization is idempotent.
func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{"", "/", "//a//b//", "/a/./b/../c", "x/y/z", "/..", "/a/b/../../../q"}
	for _, in := range inputs {
		once := Canonicalize(in)
		assert.Equal(t, once, Canonicalize(once), "input %q", in)
	}
}

func TestIsTraversal(t *testing.T) {
	for _, test := range []struct {
		in   string
		want bool
	}{
		{"/a/b", false},
		{"/a/../b", false},
		{"/..", true},
		{"/../a", true},
		{"/a/../../b", true},
		{"a/b/../..", false},
		{"a/b/../../..", true},
		{"..", true},
	} {
		assert.Equal(t, test.want, IsTraversal(test.in), "IsTraversal(%q)", test.in)
	}
}

func TestParent(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/a", "/"},
		{"/a/b", "/a"},
		{"/a/b/c", "/a/b"},
	} {
		assert.Equal(t, test.want, Parent(test.in), "Parent(%q)", test.in)
	}
}

func TestBase(t *testing.T) {
	assert.Equal(t, "/", Base("/"))
	assert.Equal(t, "a", Base("/a"))
	assert.Equal(t, "c", Base("/a/b/c"))
}

func TestJoin(t *testing.T) {
	for _, test := range []struct {
		dir  string
		name string
		want string
	}{
		{"/", "a", "/a"},
		{"/a", "b", "/a/b"},
		{"/a/", "b", "/a/b"},
		{"/a", "/b", "/a/b"},
	} {
		assert.Equal(t, test.want, Join(test.dir, test.name))
	}
}

func TestRelative(t *testing.T) {
	for _, test := range []struct {
		base string
		p    string
		want string
	}{
		{"/", "/a/b", "a/b"},
		{"/a", "/a/b", "b"},
		{"/a", "/a", ""},
		{"/a/b", "/a/b/c/d", "c/d"},
		{"/x", "/a/b", "/a/b"},
	} {
		assert.Equal(t, test.want, Relative(test.base, test.p), "Relative(%q, %q)", test.base, test.p)
	}
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, IsAncestor("/", "/a"))
	assert.True(t, IsAncestor("/a", "/a/b"))
	assert.True(t, IsAncestor("/a", "/a/b/c"))
	assert.False(t, IsAncestor("/a", "/a"))
	assert.False(t, IsAncestor("/a", "/ab"))
	assert.False(t, IsAncestor("/a/b", "/a"))
	assert.False(t, IsAncestor("/", "/"))
}

func TestAncestors(t *testing.T) {
	assert.Nil(t, Ancestors("/"))
	assert.Equal(t, []string{"/"}, Ancestors("/a"))
	assert.Equal(t, []string{"/", "/a", "/a/b"}, Ancestors("/a/b/c"))
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, Depth("/"))
	assert.Equal(t, 1, Depth("/a"))
	assert.Equal(t, 3, Depth("/a/b/c"))
}
