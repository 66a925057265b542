package core

import (
	"strings"
)

// The document model treats a task's markdown body as an ordered set of
// `## `-headed sections. Headings are only recognized outside fenced code
// blocks. Sub-headings (`### `) belong to their section's body and are left
// alone; only the verification-results marker logic descends into them.

// fenceDelim marks the start or end of a fenced code block.
const fenceDelim = "```"

// isFenceLine reports whether the line toggles fenced-block state.
func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fenceDelim)
}

// isHeadingLine reports whether the line is a `## ` section heading.
// `###` and deeper headings are not section boundaries.
func isHeadingLine(line string) bool {
	return strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "###")
}

// headingName extracts the section name from a heading line.
func headingName(line string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, "## "))
}

// NormalizeSectionName canonicalizes a section name for lookup: lowercase
// with runs of whitespace collapsed to single spaces.
func NormalizeSectionName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// section is one parsed `## ` section: the heading text as first seen plus
// its body lines.
type section struct {
	heading string
	lines   []string
}

// SplitCombinedHeadings repairs lines that carry multiple `## ` markers,
// splitting them into one heading per logical line. Naive upstream writers
// sometimes concatenate headings onto one physical line; without this the
// later headings would silently vanish into the first section's body.
// Fenced blocks are left untouched.
func SplitCombinedHeadings(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || !strings.HasPrefix(line, "## ") {
			out = append(out, line)
			continue
		}
		// Split at every interior `## ` marker, spaced or not.
		rest := line
		var pieces []string
		for {
			idx := strings.Index(rest[len("## "):], "## ")
			if idx < 0 {
				pieces = append(pieces, strings.TrimRight(rest, " "))
				break
			}
			cut := idx + len("## ")
			pieces = append(pieces, strings.TrimRight(rest[:cut], " "))
			rest = rest[cut:]
		}
		out = append(out, pieces...)
	}
	return strings.Join(out, "\n")
}

// parseSections splits a document into preamble lines (content before the
// first heading) and an ordered list of sections. Repeated headings are
// merged into the first occurrence, separated by one blank line when the
// first body is non-empty.
func parseSections(text string) (preamble []string, secs []*section, byKey map[string]*section) {
	var raw []*section
	var current *section
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if isFenceLine(line) {
			inFence = !inFence
		} else if !inFence && isHeadingLine(line) {
			current = &section{heading: headingName(line)}
			raw = append(raw, current)
			continue
		}
		if current == nil {
			preamble = append(preamble, line)
		} else {
			current.lines = append(current.lines, line)
		}
	}

	byKey = make(map[string]*section)
	for _, sec := range raw {
		key := NormalizeSectionName(sec.heading)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = sec
			secs = append(secs, sec)
			continue
		}
		// Duplicate heading: its body merges into the first occurrence,
		// with one blank separator line.
		existing.lines = trimBlankEdges(existing.lines)
		extra := trimBlankEdges(sec.lines)
		if len(existing.lines) > 0 && len(extra) > 0 {
			existing.lines = append(existing.lines, "")
		}
		existing.lines = append(existing.lines, extra...)
	}
	return preamble, secs, byKey
}

// trimBlankEdges removes leading and trailing blank lines.
func trimBlankEdges(lines []string) []string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

// spaceFences inserts a blank line before each fence opening and after each
// fence closing, unless the fence already sits at the body's edge or next to
// an existing blank line.
func spaceFences(body []string) []string {
	out := make([]string, 0, len(body))
	inFence := false
	for _, line := range body {
		if !isFenceLine(line) {
			out = append(out, line)
			continue
		}
		if !inFence {
			// Opening fence: blank line before, unless section-adjacent.
			if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
				out = append(out, "")
			}
			out = append(out, line)
			inFence = true
			continue
		}
		// Closing fence: blank line after is handled by peeking on the
		// next append.
		out = append(out, line)
		out = append(out, fenceCloseSentinel)
		inFence = false
	}
	// Resolve sentinels: keep a blank line after a closing fence only when
	// followed by a non-blank line.
	resolved := make([]string, 0, len(out))
	for i, line := range out {
		if line != fenceCloseSentinel {
			resolved = append(resolved, line)
			continue
		}
		if i+1 < len(out) && strings.TrimSpace(out[i+1]) != "" && out[i+1] != fenceCloseSentinel {
			resolved = append(resolved, "")
		}
	}
	return resolved
}

// fenceCloseSentinel is an impossible markdown line used internally by
// spaceFences; it never appears in output.
const fenceCloseSentinel = "\x00fence-close"

// Normalize parses the document into its canonical form: exactly one
// instance of each section heading (duplicates merged, not dropped), blank
// lines trimmed at section edges, fenced blocks separated from surrounding
// prose. Content before the first heading is preserved as-is, and a
// document with no sections at all is returned untouched. All-blank input
// normalizes to "".
func Normalize(doc string) string {
	text := SplitCombinedHeadings(doc)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	preamble, secs, _ := parseSections(text)
	if len(secs) == 0 {
		return doc
	}
	return renderSections(preamble, secs)
}

// renderSections produces the canonical text for a preamble plus sections.
func renderSections(preamble []string, secs []*section) string {
	var out []string
	if pre := trimBlankEdges(preamble); len(pre) > 0 {
		out = append(out, pre...)
		out = append(out, "")
	}
	for _, sec := range secs {
		out = append(out, "## "+sec.heading)
		body := spaceFences(trimBlankEdges(sec.lines))
		if len(body) > 0 {
			out = append(out, "")
			out = append(out, body...)
		}
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

// EnsureRequiredSections normalizes the document and appends an empty
// section block for every required name not already present, in the order
// given. An empty document with required sections therefore yields a
// deterministic skeleton.
func EnsureRequiredSections(doc string, required []string) string {
	text := SplitCombinedHeadings(doc)
	preamble, secs, byKey := parseSections(text)
	if strings.TrimSpace(text) == "" {
		preamble, secs, byKey = nil, nil, map[string]*section{}
	}
	for _, name := range required {
		key := NormalizeSectionName(name)
		if _, ok := byKey[key]; ok {
			continue
		}
		sec := &section{heading: name}
		byKey[key] = sec
		secs = append(secs, sec)
	}
	return renderSections(preamble, secs)
}

// SetSection replaces the body of the first section whose heading line
// matches `## name` exactly (case-sensitive), up to the next `## ` heading.
// A missing section is appended at the end. The result always carries a
// trailing blank line before any following heading.
func SetSection(body, name, newText string) string {
	lines := strings.Split(body, "\n")
	target := "## " + name

	start := -1
	inFence := false
	for i, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			continue
		}
		if !inFence && strings.TrimRight(line, " ") == target {
			start = i
			break
		}
	}

	newLines := trimBlankEdges(strings.Split(newText, "\n"))

	if start < 0 {
		// Append a new section at the end.
		out := trimTrailingBlank(lines)
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, target)
		if len(newLines) > 0 {
			out = append(out, "")
			out = append(out, newLines...)
		}
		out = append(out, "")
		return strings.Join(out, "\n")
	}

	// Find the end of the section: the next `## ` heading after start.
	end := len(lines)
	inFence = false
	for i := start + 1; i < len(lines); i++ {
		if isFenceLine(lines[i]) {
			inFence = !inFence
			continue
		}
		if !inFence && isHeadingLine(lines[i]) {
			end = i
			break
		}
	}

	out := append([]string{}, lines[:start+1]...)
	if len(newLines) > 0 {
		out = append(out, "")
		out = append(out, newLines...)
	}
	out = append(out, "")
	if end < len(lines) {
		out = append(out, lines[end:]...)
	}
	return strings.Join(out, "\n")
}

// MergeSections overlays every section of overlay onto base via SetSection:
// sections present in both are replaced, sections only in overlay are
// appended, and sections only in base survive untouched. Overlay preamble
// is ignored; base preamble is preserved.
func MergeSections(base, overlay string) string {
	_, secs, _ := parseSections(SplitCombinedHeadings(overlay))
	out := base
	for _, sec := range secs {
		body := strings.Join(trimBlankEdges(sec.lines), "\n")
		out = SetSection(out, sec.heading, body)
	}
	return out
}

// trimTrailingBlank removes trailing blank lines only.
func trimTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// ExtractSection returns the trimmed body of the first section matching the
// given name (case/space-insensitive), and whether it was found. Capture
// stops at the next `## ` heading.
func ExtractSection(doc, name string) (string, bool) {
	key := NormalizeSectionName(name)
	lines := strings.Split(doc, "\n")

	start := -1
	inFence := false
	for i, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
			continue
		}
		if !inFence && isHeadingLine(line) && NormalizeSectionName(headingName(line)) == key {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}

	end := len(lines)
	inFence = false
	for i := start + 1; i < len(lines); i++ {
		if isFenceLine(lines[i]) {
			inFence = !inFence
			continue
		}
		if !inFence && isHeadingLine(lines[i]) {
			end = i
			break
		}
	}

	body := trimBlankEdges(lines[start+1 : end])
	return strings.Join(body, "\n"), true
}

// SectionFilled reports whether the named section exists with a body that is
// neither empty nor an obvious placeholder.
func SectionFilled(doc, name string) bool {
	body, ok := ExtractSection(doc, name)
	if !ok {
		return false
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	// Bracketed one-liners like "[TBD]" are template placeholders.
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") && !strings.Contains(trimmed, "\n") {
		return false
	}
	return true
}
