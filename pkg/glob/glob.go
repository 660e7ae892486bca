// Package glob compiles shell-style patterns into anchored matchers.
//
// The pattern language: '*' matches any run of non-separator characters,
// '**' matches zero or more whole path segments, '?' matches one
// non-separator character, '[abc]' and '[a-z]' are character classes, and
// '{a,b,c}' is alternation. Matching is anchored: the whole string must
// match the whole pattern.
package glob

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Options control pattern compilation.
type Options struct {
	// Dot allows wildcards to match names beginning with '.'. When false
	// a leading dot must be matched literally, as in a shell.
	Dot bool
	// IgnoreCase compiles a case-insensitive matcher.
	IgnoreCase bool
}

// Matcher is a compiled pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Pattern returns the source pattern text.
func (m *Matcher) Pattern() string { return m.pattern }

// Match reports whether s matches the whole pattern.
func (m *Matcher) Match(s string) bool { return m.re.MatchString(s) }

// String returns the compiled regular expression, for diagnostics.
func (m *Matcher) String() string { return m.re.String() }

// Compile translates pattern into an anchored matcher.
func Compile(pattern string, opts ...Options) (*Matcher, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	re, err := toRegexp(pattern, o)
	if err != nil {
		return nil, err
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// MustCompile is Compile, panicking on a bad pattern. For package-level
// preset tables.
func MustCompile(pattern string, opts ...Options) *Matcher {
	m, err := Compile(pattern, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Match is the single-shot form: compile pattern and test s.
func Match(pattern, s string, opts ...Options) (bool, error) {
	m, err := Compile(pattern, opts...)
	if err != nil {
		return false, err
	}
	return m.Match(s), nil
}

// toRegexp converts a glob into an anchored regexp, after the manner of
// glob-to-regexp translators in file sync tooling: walk the pattern,
// escaping literals and expanding metacharacters in place. The pattern is
// handled segment-wise so that '**' can stand for whole path segments.
func toRegexp(pattern string, o Options) (*regexp.Regexp, error) {
	var re bytes.Buffer
	if o.IgnoreCase {
		re.WriteString("(?i)")
	}
	re.WriteString("^")

	segs := strings.Split(pattern, "/")
	needSlash := false
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg == "**" {
			switch {
			case last && needSlash:
				// "a/**": the named path or anything below it.
				if o.Dot {
					re.WriteString(`(?:/.*)?`)
				} else {
					re.WriteString(`(?:/[^/.][^/]*)*`)
				}
			case last:
				// bare "**"
				if o.Dot {
					re.WriteString(`.*`)
				} else {
					re.WriteString(`(?:[^/.][^/]*(?:/[^/.][^/]*)*)?`)
				}
			default:
				// "**/" stands for zero or more whole segments.
				if needSlash {
					re.WriteString("/")
				}
				if o.Dot {
					re.WriteString(`(?:[^/]*/)*`)
				} else {
					re.WriteString(`(?:[^/.][^/]*/)*`)
				}
				needSlash = false
				continue
			}
			needSlash = false
			continue
		}
		if needSlash {
			re.WriteString("/")
		}
		if err := writeSegment(&re, seg, o); err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}
		needSlash = true
	}

	re.WriteString("$")
	return regexp.Compile(re.String())
}

// writeSegment translates one slash-free pattern segment.
func writeSegment(re *bytes.Buffer, seg string, o Options) error {
	atStart := true
	var inBrace bool
	in := []rune(seg)
	for i := 0; i < len(in); i++ {
		c := in[i]
		switch c {
		case '*':
			doubled := i+1 < len(in) && in[i+1] == '*'
			if doubled {
				i++
				if i+1 < len(in) && in[i+1] == '*' {
					return fmt.Errorf("too many stars")
				}
				// '**' glued to literals spans separators.
				re.WriteString(`.*`)
			} else if atStart && !o.Dot {
				if i+1 < len(in) && in[i+1] == '.' {
					// "*.ext" must not match a bare ".ext" dotfile.
					re.WriteString(`[^/.][^/]*`)
				} else {
					re.WriteString(`(?:[^/.][^/]*)?`)
				}
			} else {
				re.WriteString(`[^/]*`)
			}
		case '?':
			if atStart && !o.Dot {
				re.WriteString(`[^/.]`)
			} else {
				re.WriteString(`[^/]`)
			}
		case '[':
			end := strings.IndexRune(string(in[i+1:]), ']')
			if end < 0 {
				return fmt.Errorf("mismatched '[' and ']'")
			}
			class := string(in[i : i+end+2])
			if _, err := regexp.Compile(class); err != nil {
				return err
			}
			re.WriteString(class)
			i += end + 1
		case ']':
			return fmt.Errorf("mismatched ']'")
		case '{':
			if inBrace {
				return fmt.Errorf("can't nest '{' and '}'")
			}
			inBrace = true
			re.WriteString("(?:")
		case '}':
			if !inBrace {
				return fmt.Errorf("mismatched '{' and '}'")
			}
			inBrace = false
			re.WriteString(")")
		case ',':
			if inBrace {
				re.WriteString("|")
			} else {
				re.WriteString(",")
			}
		case '\\':
			if i+1 >= len(in) {
				return fmt.Errorf("trailing backslash")
			}
			i++
			re.WriteString(regexp.QuoteMeta(string(in[i])))
		default:
			re.WriteString(regexp.QuoteMeta(string(c)))
		}
		atStart = false
	}
	if inBrace {
		return fmt.Errorf("mismatched '{' and '}'")
	}
	return nil
}
