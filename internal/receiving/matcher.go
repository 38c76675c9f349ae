package receiving

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Status is the outcome of matching one note line.
type Status int

const (
	Matched Status = iota
	Ambiguous
	Unmatched
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	case Unmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Candidate is an ingredient the matcher can resolve a line to.
type Candidate struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	SKU  string    `json:"sku,omitempty"`
	Unit string    `json:"unit"`
}

// Match holds Item when Matched and Candidates when Ambiguous.
type Match struct {
	Status     Status      `json:"status"`
	Item       *Candidate  `json:"item,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

const (
	qualifierWeight = 5
	regularWeight   = 1
)

// Qualifiers tell apart variants of the same product. When a line names
// one, only candidates carrying it are considered.
var qualifiers = map[string]bool{
	"roja": true, "rojo": true,
	"verde": true,
	"blanca": true, "blanco": true,
	"negra": true, "negro": true,
	"amarilla": true, "amarillo": true,
	"grande": true,
	"mediana": true, "mediano": true,
	"chica": true, "chico": true,
	"entera": true, "entero": true,
	"descremada": true,
	"perita": true,
}

// Matcher scores note descriptions against ingredient names and SKUs.
type Matcher struct {
	items    []Candidate
	keywords [][]string
	bySKU    map[string]int
}

func NewMatcher(items []Candidate) *Matcher {
	m := &Matcher{
		items:    items,
		keywords: make([][]string, len(items)),
		bySKU:    make(map[string]int, len(items)),
	}
	for i, item := range items {
		m.keywords[i] = tokenize(item.Name + " " + item.SKU)
		if sku := strings.ToLower(strings.TrimSpace(item.SKU)); sku != "" {
			m.bySKU[sku] = i
		}
	}
	return m
}

func (m *Matcher) Match(desc string) Match {
	for _, tok := range strings.Fields(strings.ToLower(desc)) {
		if i, ok := m.bySKU[tok]; ok {
			item := m.items[i]
			return Match{Status: Matched, Item: &item}
		}
	}

	input := make(map[string]bool)
	wanted := make(map[string]bool)
	for _, tok := range tokenize(desc) {
		input[tok] = true
		if qualifiers[tok] {
			wanted[tok] = true
		}
	}

	best := 0
	var top []Candidate
	for i, item := range m.items {
		kws := m.keywords[i]
		if !hasAll(kws, wanted) {
			continue
		}
		score := 0
		for _, kw := range kws {
			if !input[kw] {
				continue
			}
			if qualifiers[kw] {
				score += qualifierWeight
			} else {
				score += regularWeight
			}
		}
		switch {
		case score == 0 || score < best:
		case score > best:
			best = score
			top = []Candidate{item}
		default:
			top = append(top, item)
		}
	}

	switch len(top) {
	case 0:
		return Match{Status: Unmatched}
	case 1:
		return Match{Status: Matched, Item: &top[0]}
	default:
		return Match{Status: Ambiguous, Candidates: top}
	}
}

func hasAll(kws []string, wanted map[string]bool) bool {
	for w := range wanted {
		found := false
		for _, kw := range kws {
			if kw == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var stopwords = map[string]bool{"de": true, "del": true, "la": true, "el": true, "con": true, "x": true}

var accents = strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n")

// normalize lowercases, folds accents and turns punctuation into spaces.
func normalize(s string) string {
	s = accents.Replace(strings.ToLower(s))
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// tokenize normalizes s and returns the stems of its words, skipping
// stopwords and bare numbers.
func tokenize(s string) []string {
	var out []string
	for _, w := range strings.Fields(normalize(s)) {
		if stopwords[w] || strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

// stem folds plurals so "tomates" meets "tomate" and "limones" meets "limon".
// Qualifiers keep their gender.
func stem(w string) string {
	if qualifiers[w] {
		return w
	}
	if len(w) > 3 {
		w = strings.TrimSuffix(w, "s")
	}
	if qualifiers[w] {
		return w
	}
	if len(w) > 4 {
		w = strings.TrimSuffix(w, "e")
	}
	return w
}
