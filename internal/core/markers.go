package core

import (
	"strings"
)

// Verification results live between literal markers inside the
// "Verification" section's "Results" subsection. Entries are only ever
// appended between the markers, so the history stays append-only and
// machine-parseable without disturbing hand-written narrative above it.

const (
	// VerificationSection is the section heading holding verification
	// narrative and results.
	VerificationSection = "Verification"
	// ResultsBeginMarker opens the machine-managed results block.
	ResultsBeginMarker = "<!-- BEGIN VERIFICATION RESULTS -->"
	// ResultsEndMarker closes the machine-managed results block.
	ResultsEndMarker = "<!-- END VERIFICATION RESULTS -->"
	// resultsSubheading is the `###` subsection that carries the block.
	resultsSubheading = "### Results"
)

// markerState tracks position relative to the marker pair while scanning.
type markerState int

const (
	beforeBegin markerState = iota
	insideMarkers
	afterEnd
)

// AppendBetweenMarkers appends entry lines immediately before the end
// marker of the begin/end pair in text. If the pair is absent it is
// synthesized around an empty block at the end of the text. Content outside
// the markers is never modified.
func AppendBetweenMarkers(text, begin, end, entry string) string {
	entryLines := trimBlankEdges(strings.Split(entry, "\n"))

	state := beforeBegin
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch state {
		case beforeBegin:
			if trimmed == begin {
				state = insideMarkers
			}
			out = append(out, line)
		case insideMarkers:
			if trimmed == end {
				out = append(out, entryLines...)
				state = afterEnd
			}
			out = append(out, line)
		case afterEnd:
			out = append(out, line)
		}
	}

	if state == afterEnd {
		return strings.Join(out, "\n")
	}

	// Markers absent (or unbalanced): synthesize the pair at the end and
	// place the entry inside.
	out = trimTrailingBlank(lines)
	if len(out) > 0 {
		out = append(out, "")
	}
	out = append(out, begin)
	out = append(out, entryLines...)
	out = append(out, end)
	out = append(out, "")
	return strings.Join(out, "\n")
}

// AppendVerificationEntry appends entry to the results block of the
// document's Verification section, creating the section, the Results
// subsection, and the marker pair as needed.
func AppendVerificationEntry(doc, entry string) string {
	body, ok := ExtractSection(doc, VerificationSection)
	if !ok {
		body = ""
	}

	if !strings.Contains(body, ResultsBeginMarker) {
		lines := trimTrailingBlank(strings.Split(body, "\n"))
		if !containsTrimmed(lines, resultsSubheading) {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, resultsSubheading)
		}
		lines = append(lines, "", ResultsBeginMarker, ResultsEndMarker)
		body = strings.Join(lines, "\n")
	}

	body = AppendBetweenMarkers(body, ResultsBeginMarker, ResultsEndMarker, entry)
	return SetSection(doc, VerificationSection, body)
}

func containsTrimmed(lines []string, want string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
