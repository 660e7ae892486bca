// Package pathutil provides the pure path and mode math used across the
// engine. Nothing here touches storage; every function is safe to call on
// hostile input.
package pathutil

import (
	"strings"
)

// Canonicalize normalizes p into the engine's canonical form: exactly one
// leading '/', no trailing '/' except root, no '.' or '..' segments, no
// empty segments. '..' pops but never rises above root.
func Canonicalize(p string) string {
	if p == "" {
		return "/"
	}
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			// collapse
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

// IsTraversal reports whether p attempts to escape the root: at some point
// during left-to-right '..' popping the depth would drop below zero.
func IsTraversal(p string) bool {
	depth := 0
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// Parent returns the canonical parent of p. The parent of root is root.
func Parent(p string) string {
	p = Canonicalize(p)
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// Base returns the final path segment, or "/" for root.
func Base(p string) string {
	p = Canonicalize(p)
	if p == "/" {
		return "/"
	}
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Join appends name to dir without doubling separators.
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + strings.TrimPrefix(name, "/")
	}
	return strings.TrimSuffix(dir, "/") + "/" + strings.TrimPrefix(name, "/")
}

// Relative strips base from p. It returns "" when the paths are equal and
// p unchanged when base is not a prefix.
func Relative(base, p string) string {
	base = Canonicalize(base)
	p = Canonicalize(p)
	if base == "/" {
		return strings.TrimPrefix(p, "/")
	}
	if p == base {
		return ""
	}
	if strings.HasPrefix(p, base+"/") {
		return p[len(base)+1:]
	}
	return p
}

// IsAncestor reports whether ancestor strictly contains p.
func IsAncestor(ancestor, p string) bool {
	ancestor = Canonicalize(ancestor)
	p = Canonicalize(p)
	if ancestor == "/" {
		return p != "/"
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Ancestors returns every ancestor of p from root down, excluding p
// itself. Ancestors("/a/b/c") = ["/", "/a", "/a/b"].
func Ancestors(p string) []string {
	p = Canonicalize(p)
	if p == "/" {
		return nil
	}
	out := []string{"/"}
	segs := strings.Split(p[1:], "/")
	cur := ""
	for _, s := range segs[:len(segs)-1] {
		cur = cur + "/" + s
		out = append(out, cur)
	}
	return out
}

// Depth returns the number of segments below root. Depth("/") = 0.
func Depth(p string) int {
	p = Canonicalize(p)
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}
