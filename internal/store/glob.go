package store

import (
	"regexp"
	"strings"
)

// globPattern is a single compiled topic-glob pattern.
// Patterns are segmented on '/'; '*' matches within one segment, '**'
// matches zero or more whole segments, '?' matches one character, and
// '{a,b}' alternatives are expanded into multiple compiled variants before
// matching (so one globPattern may hold several regexes, any of which is
// a hit). A leading '!' marks the pattern as a negation to its caller;
// globPattern itself only ever matches the positive form.
type globPattern struct {
	raw      string
	negation bool
	variants []*regexp.Regexp
}

// compileGlob compiles a single glob pattern, handling leading '!' and
// brace-alternative expansion, the way the gitignore matcher in the
// example corpus compiles one rule per call to AddPattern — generalized
// here to also support '{a,b}' alternation and '**' mid-pattern, which
// topic paths need but gitignore rules don't.
func compileGlob(pattern string) *globPattern {
	gp := &globPattern{raw: pattern}

	if strings.HasPrefix(pattern, "!") {
		gp.negation = true
		pattern = strings.TrimPrefix(pattern, "!")
	}

	for _, variant := range expandBraces(pattern) {
		gp.variants = append(gp.variants, regexp.MustCompile("^"+segmentsToRegex(variant)+"$"))
	}

	return gp
}

// Match reports whether topic matches any brace-expansion variant of the
// pattern (ignoring negation, which is the caller's concern).
func (gp *globPattern) Match(topic string) bool {
	for _, re := range gp.variants {
		if re.MatchString(topic) {
			return true
		}
	}
	return false
}

// expandBraces performs one level of shell-style {a,b,c} expansion,
// returning every literal alternative. Patterns without braces return a
// single-element slice unchanged. Nested braces are not supported (topic
// paths don't need them).
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += start

	prefix := pattern[:start]
	suffix := pattern[end+1:]
	alternatives := strings.Split(pattern[start+1:end], ",")

	var out []string
	for _, alt := range alternatives {
		for _, rest := range expandBraces(prefix + alt + suffix) {
			out = append(out, rest)
		}
	}
	return out
}

// segmentsToRegex converts a brace-free glob into a regex over '/'-joined
// topic paths.
func segmentsToRegex(pattern string) string {
	var b strings.Builder

	// A trailing "/**" also matches the bare prefix, so its slash is optional.
	tail := ""
	if len(pattern) > 3 && strings.HasSuffix(pattern, "/**") {
		pattern = strings.TrimSuffix(pattern, "/**")
		tail = "(?:/.*)?"
	}

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				// '**' consumes zero or more whole segments, including the
				// separating slash on either side.
				switch {
				case i+2 < len(pattern) && pattern[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 3
				case i == 0:
					b.WriteString(".*")
					i += 2
				default:
					b.WriteString(".*")
					i += 2
				}
				continue
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '.', '+', '^', '$', '(', ')', '[', ']', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			b.WriteString(string(c))
			i++
		}
	}
	b.WriteString(tail)

	return b.String()
}

// MatchTopicAny reports whether topic matches any of patterns, honoring
// negation the same way MatchTopics does (a later negated pattern can
// un-match an earlier positive one).
func MatchTopicAny(topic string, patterns []string) bool {
	matched := false
	for _, p := range patterns {
		gp := compileGlob(p)
		if !gp.Match(topic) {
			continue
		}
		matched = !gp.negation
	}
	return matched
}

// MatchTopics applies patterns in order against candidates and returns the
// set of candidate topics selected: a non-negated pattern adds every
// matching candidate, a '!'-prefixed pattern removes matches already
// selected.
func MatchTopics(patterns []string, candidates []string) []string {
	selected := make(map[string]bool)

	for _, p := range patterns {
		gp := compileGlob(p)
		for _, c := range candidates {
			if !gp.Match(c) {
				continue
			}
			if gp.negation {
				delete(selected, c)
			} else {
				selected[c] = true
			}
		}
	}

	out := make([]string, 0, len(selected))
	for c := range selected {
		if selected[c] {
			out = append(out, c)
		}
	}
	return out
}
