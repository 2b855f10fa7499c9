package engine

import "strings"

// stopMatcher holds back produced text while it could still turn into one
// of the stop sequences.
type stopMatcher struct {
	stops   []string
	pending string
}

// push adds text and returns what can be released. matched reports that a
// stop sequence completed; the sequence and anything after it are dropped.
func (m *stopMatcher) push(text string) (release string, matched bool) {
	if len(m.stops) == 0 {
		return text, false
	}
	m.pending += text
	cut := -1
	for _, s := range m.stops {
		if i := strings.Index(m.pending, s); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut >= 0 {
		release = m.pending[:cut]
		m.pending = ""
		return release, true
	}
	hold := 0
	for _, s := range m.stops {
		if n := partialSuffix(m.pending, s); n > hold {
			hold = n
		}
	}
	release = m.pending[:len(m.pending)-hold]
	m.pending = m.pending[len(m.pending)-hold:]
	return release, false
}

// flush releases whatever is still held.
func (m *stopMatcher) flush() string {
	s := m.pending
	m.pending = ""
	return s
}

// partialSuffix returns the length of the longest suffix of text that is a
// proper prefix of stop.
func partialSuffix(text, stop string) int {
	for n := min(len(text), len(stop)-1); n > 0; n-- {
		if strings.HasSuffix(text, stop[:n]) {
			return n
		}
	}
	return 0
}
