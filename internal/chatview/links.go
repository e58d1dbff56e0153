package chatview

import "regexp"

var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// Segment is a run of plain text or a markdown-style link.
type Segment struct {
	Text string
	// URL is empty for plain text.
	URL string
}

func (s Segment) IsLink() bool {
	return s.URL != ""
}

// ParseLinks splits text on [label](url) occurrences, left to right. Text
// around the links is kept verbatim and in order.
func ParseLinks(text string) []Segment {
	var parts []Segment
	last := 0
	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			parts = append(parts, Segment{Text: text[last:m[0]]})
		}
		parts = append(parts, Segment{Text: text[m[2]:m[3]], URL: text[m[4]:m[5]]})
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, Segment{Text: text[last:]})
	}
	return parts
}
