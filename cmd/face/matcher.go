package face

import "math"

const DefaultTolerance = 0.6

// Reference is a registered employee's encoding.
type Reference struct {
	Name     string
	Encoding Encoding
}

type Match struct {
	Index    int
	Name     string
	Distance float64
}

type Matcher struct {
	Tolerance float64
}

func NewMatcher(tolerance float64) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{Tolerance: tolerance}
}

// FindBestMatch returns the nearest reference to candidate. The bool is false
// when the gallery is empty or the nearest distance exceeds the tolerance.
func (m *Matcher) FindBestMatch(candidate Encoding, gallery []Reference) (Match, bool) {
	best := Match{Index: -1, Distance: math.Inf(1)}
	for i, ref := range gallery {
		dist := Distance(candidate, ref.Encoding)
		if dist < best.Distance {
			best = Match{Index: i, Name: ref.Name, Distance: dist}
		}
	}
	if best.Index < 0 {
		return best, false
	}
	return best, best.Distance <= m.Tolerance
}

// Identify tries each detected face in order and stops at the first match.
func (m *Matcher) Identify(candidates []Encoding, gallery []Reference) (Match, bool) {
	for _, candidate := range candidates {
		if match, ok := m.FindBestMatch(candidate, gallery); ok {
			return match, true
		}
	}
	return Match{Index: -1, Distance: math.Inf(1)}, false
}
