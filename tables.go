package main

import (
	"github.com/goccy/go-json"
)

// ===========================================================================
// PROBABILITY TABLES - The two "language models" being compared
// ===========================================================================
//
// Both models in this tool are nothing more than lookup tables:
//
//   - The UNIGRAM model assigns every character a fixed probability, no matter
//     what came before it. It knows that 'e' is common and 'q' is rare, and
//     nothing else.
//
//   - The CONTEXT model (labelled "LLM" in the UI) conditions on the previous
//     two characters. After "th" it is 70% sure the next character is 'e'.
//     A real LLM conditions on thousands of tokens with learned weights; this
//     table is the smallest thing that still shows WHY context lowers
//     perplexity.
//
// The tables are built once at package init and never mutated afterwards, so
// concurrent evaluations can read them without locking.
//
// ===========================================================================

// UnknownCharacterFloor is the probability substituted for any character (or
// context) a table has never seen. It must stay > 0 so log2 is always defined.
const UnknownCharacterFloor = 0.001

// ContextOrder is the number of preceding characters the context model uses.
const ContextOrder = 2

// Prediction is a single (character, probability) entry of a table.
type Prediction struct {
	Char rune    `json:"char"`
	Prob float64 `json:"prob"`
}

// ProbabilityTable maps single characters to probabilities while remembering
// the order the entries were defined in. The order matters for ranking: ties
// are broken by definition order.
type ProbabilityTable struct {
	entries []Prediction
	index   map[rune]int
}

// NewProbabilityTable builds a table from ordered entries. A repeated
// character keeps its first position and takes the last probability.
func NewProbabilityTable(entries ...Prediction) *ProbabilityTable {
	t := &ProbabilityTable{
		entries: make([]Prediction, 0, len(entries)),
		index:   make(map[rune]int, len(entries)),
	}
	for _, e := range entries {
		if i, ok := t.index[e.Char]; ok {
			t.entries[i].Prob = e.Prob
			continue
		}
		t.index[e.Char] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t
}

// Lookup returns the probability of r and whether the table knows r at all.
func (t *ProbabilityTable) Lookup(r rune) (float64, bool) {
	i, ok := t.index[r]
	if !ok {
		return 0, false
	}
	return t.entries[i].Prob, true
}

// ProbOrFloor returns the probability of r or UnknownCharacterFloor.
func (t *ProbabilityTable) ProbOrFloor(r rune) float64 {
	if p, ok := t.Lookup(r); ok && p > 0 {
		return p
	}
	return UnknownCharacterFloor
}

// Len returns the number of entries.
func (t *ProbabilityTable) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in definition order.
func (t *ProbabilityTable) Entries() []Prediction {
	out := make([]Prediction, len(t.entries))
	copy(out, t.entries)
	return out
}

// ContextTable maps an order-2 context string to the distribution of the
// characters observed to follow it.
type ContextTable struct {
	keys   []string
	tables map[string]*ProbabilityTable
}

type contextEntry struct {
	key   string
	table *ProbabilityTable
}

func newContextTable(entries ...contextEntry) *ContextTable {
	ct := &ContextTable{tables: make(map[string]*ProbabilityTable, len(entries))}
	for _, e := range entries {
		if _, ok := ct.tables[e.key]; !ok {
			ct.keys = append(ct.keys, e.key)
		}
		ct.tables[e.key] = e.table
	}
	return ct
}

// Lookup returns the inner table for key.
func (ct *ContextTable) Lookup(key string) (*ProbabilityTable, bool) {
	t, ok := ct.tables[key]
	return t, ok
}

// Keys returns the context keys in definition order.
func (ct *ContextTable) Keys() []string {
	out := make([]string, len(ct.keys))
	copy(out, ct.keys)
	return out
}

// MarshalJSON encodes the character as a string rather than a code point.
func (p Prediction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Char string  `json:"char"`
		Prob float64 `json:"prob"`
	}{string(p.Char), p.Prob})
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (p *Prediction) UnmarshalJSON(b []byte) error {
	var aux struct {
		Char string  `json:"char"`
		Prob float64 `json:"prob"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.Char, p.Prob = firstRune(aux.Char), aux.Prob
	return nil
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func pred(r rune, prob float64) Prediction {
	return Prediction{Char: r, Prob: prob}
}

// UnigramTable holds rough English character frequencies: 26 letters, space
// and period.
var UnigramTable = NewProbabilityTable(
	pred('a', 0.08), pred('b', 0.02), pred('c', 0.03), pred('d', 0.04), pred('e', 0.12),
	pred('f', 0.02), pred('g', 0.02), pred('h', 0.06), pred('i', 0.07), pred('j', 0.01),
	pred('k', 0.01), pred('l', 0.04), pred('m', 0.03), pred('n', 0.07), pred('o', 0.08),
	pred('p', 0.02), pred('q', 0.01), pred('r', 0.06), pred('s', 0.06), pred('t', 0.09),
	pred('u', 0.03), pred('v', 0.01), pred('w', 0.02), pred('x', 0.01), pred('y', 0.02),
	pred('z', 0.01), pred(' ', 0.19), pred('.', 0.01),
)

// ContextModelTable is the fake "LLM": hand-written continuations for the
// contexts that occur in the default sample sentence.
//
// The inner entries of "t." keep their upper-case characters. Lookups lower-case
// the queried character, so those entries are only ever visible in rankings.
var ContextModelTable = newContextTable(
	contextEntry{"th", NewProbabilityTable(pred('e', 0.70), pred('i', 0.10), pred('a', 0.08), pred('o', 0.05), pred('r', 0.04))},
	contextEntry{"he", NewProbabilityTable(pred(' ', 0.60), pred('r', 0.15), pred('n', 0.08), pred('a', 0.05), pred('l', 0.04))},
	contextEntry{"e ", NewProbabilityTable(pred('c', 0.12), pred('s', 0.11), pred('m', 0.10), pred('b', 0.09), pred('t', 0.08))},
	contextEntry{" c", NewProbabilityTable(pred('a', 0.30), pred('o', 0.25), pred('h', 0.15), pred('l', 0.10), pred('r', 0.05))},
	contextEntry{"ca", NewProbabilityTable(pred('t', 0.40), pred('r', 0.20), pred('n', 0.15), pred('l', 0.10), pred('s', 0.05))},
	contextEntry{"at", NewProbabilityTable(pred(' ', 0.50), pred('e', 0.15), pred('i', 0.10), pred('h', 0.05), pred('c', 0.05))},
	contextEntry{"t ", NewProbabilityTable(pred('s', 0.25), pred('i', 0.20), pred('o', 0.15), pred('a', 0.10), pred('t', 0.08))},
	contextEntry{" s", NewProbabilityTable(pred('a', 0.20), pred('o', 0.15), pred('h', 0.15), pred('t', 0.10), pred('e', 0.10))},
	contextEntry{"sa", NewProbabilityTable(pred('t', 0.25), pred('y', 0.15), pred('n', 0.10), pred('l', 0.10), pred('v', 0.05))},
	contextEntry{" o", NewProbabilityTable(pred('n', 0.35), pred('f', 0.20), pred('r', 0.15), pred('u', 0.10), pred('v', 0.05))},
	contextEntry{"on", NewProbabilityTable(pred(' ', 0.50), pred('e', 0.20), pred('l', 0.10), pred('g', 0.05), pred('s', 0.05))},
	contextEntry{"n ", NewProbabilityTable(pred('t', 0.30), pred('a', 0.20), pred('s', 0.15), pred('o', 0.10), pred('i', 0.05))},
	contextEntry{" t", NewProbabilityTable(pred('h', 0.40), pred('o', 0.20), pred('r', 0.10), pred('i', 0.05), pred('a', 0.05))},
	contextEntry{" m", NewProbabilityTable(pred('a', 0.25), pred('o', 0.20), pred('e', 0.15), pred('i', 0.10), pred('u', 0.05))},
	contextEntry{"ma", NewProbabilityTable(pred('t', 0.25), pred('n', 0.20), pred('r', 0.15), pred('k', 0.10), pred('y', 0.05))},
	contextEntry{"t.", NewProbabilityTable(pred(' ', 0.80), pred('\n', 0.10), pred('A', 0.05), pred('T', 0.03), pred('I', 0.02))},
)
