package main

/*
WHAT'S GOING ON HERE?

This file computes character-level perplexity under the two table models from
tables.go and exposes the per-character breakdown the visualizations display.

KEY CONCEPTS:
- Surprisal: -log2(p), how many bits of "surprise" one character costs
- Cross-entropy: the average surprisal over the whole text
- Perplexity: 2^(cross-entropy), roughly "how many characters was the model
  choosing between on average". Lower is better, 1 is perfect.

ALGORITHM (per model):
1. Lower-case the text and split it into characters (runes)
2. Look up the probability of each character
   - Unigram: table value, or the floor for unknown characters
   - Context: key = last 2 preceding characters
       key known        -> inner table value, or the floor
       key unknown      -> unigram value, or the floor
       no context (i=0) -> unigram value, or the floor
3. Average -log2(p) over all characters, then raise 2 to that power

Empty text is defined to have perplexity 0 under both models. Every other input
yields perplexity >= 1 because every probability used is in (0, 1].

Everything here is a pure function of its inputs: no state survives a call.
*/

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// Gauge bounds used by the visualization for perplexity bars.
const (
	GaugeMin = 1.0
	GaugeMax = 30.0
)

// PerplexityResult holds the perplexity of a text under both models.
type PerplexityResult struct {
	Unigram float64 `json:"unigram_perplexity"`
	Context float64 `json:"llm_perplexity"`
}

// CharScore is the per-character breakdown of an evaluation.
type CharScore struct {
	Index       int     `json:"index"`
	Char        rune    `json:"char"`
	ContextKey  string  `json:"context_key"`
	UnigramProb float64 `json:"unigram_prob"`
	ContextProb float64 `json:"llm_prob"`
	UnigramBits float64 `json:"unigram_bits"`
	ContextBits float64 `json:"llm_bits"`
}

// MarshalJSON encodes the character as a string rather than a code point.
func (c CharScore) MarshalJSON() ([]byte, error) {
	type alias CharScore
	return json.Marshal(struct {
		alias
		Char string `json:"char"`
	}{alias(c), string(c.Char)})
}

// UnmarshalJSON accepts the string form written by MarshalJSON.
func (c *CharScore) UnmarshalJSON(b []byte) error {
	type alias CharScore
	aux := struct {
		*alias
		Char string `json:"char"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.Char = firstRune(aux.Char)
	return nil
}

// Analysis is the full evaluation of one text.
type Analysis struct {
	Text   string           `json:"text"`
	Chars  []CharScore      `json:"chars"`
	Result PerplexityResult `json:"result"`

	display []rune
}

// Len returns the number of evaluated characters.
func (a *Analysis) Len() int {
	return len(a.Chars)
}

// At returns the score of the character at pos.
func (a *Analysis) At(pos int) (CharScore, bool) {
	if pos < 0 || pos >= len(a.Chars) {
		return CharScore{}, false
	}
	return a.Chars[pos], true
}

// ContextAt returns the full text preceding pos, as typed.
func (a *Analysis) ContextAt(pos int) string {
	if pos <= 0 {
		return ""
	}
	if pos > len(a.display) {
		pos = len(a.display)
	}
	return string(a.display[:pos])
}

// DisplayChars returns the characters of the text as typed.
func (a *Analysis) DisplayChars() []rune {
	return a.display
}

// PerplexityEvaluator scores text under a unigram table and an order-2
// context table. The zero value is not usable; see NewPerplexityEvaluator.
type PerplexityEvaluator struct {
	unigram *ProbabilityTable
	context *ContextTable
}

// NewPerplexityEvaluator creates an evaluator over the given tables. The tables
// are only read, so one evaluator may be shared freely between goroutines.
func NewPerplexityEvaluator(unigram *ProbabilityTable, context *ContextTable) *PerplexityEvaluator {
	return &PerplexityEvaluator{unigram: unigram, context: context}
}

// DefaultEvaluator uses the built-in tables.
var DefaultEvaluator = NewPerplexityEvaluator(UnigramTable, ContextModelTable)

// Surprisal returns -log2(p) in bits.
func Surprisal(p float64) float64 {
	return -math.Log2(p)
}

// UnigramProbability returns the context-free probability of r.
func (e *PerplexityEvaluator) UnigramProbability(r rune) float64 {
	return e.unigram.ProbOrFloor(toLower(r))
}

// ContextProbability returns the probability of r given the characters that
// precede it. Only the last ContextOrder characters of context are used.
//
// NOTE: a known context with an unseen character falls to the floor, not to
// the unigram table. Only unknown contexts back off to the unigram model.
func (e *PerplexityEvaluator) ContextProbability(context []rune, r rune) float64 {
	if len(context) == 0 {
		return e.UnigramProbability(r)
	}
	if inner, ok := e.context.Lookup(contextKey(context)); ok {
		return inner.ProbOrFloor(toLower(r))
	}
	return e.UnigramProbability(r)
}

// Evaluate returns the perplexity of text under both models.
func (e *PerplexityEvaluator) Evaluate(text string) PerplexityResult {
	return e.Analyze(text).Result
}

// Analyze evaluates text and keeps the per-character breakdown.
func (e *PerplexityEvaluator) Analyze(text string) *Analysis {
	runes := []rune(strings.ToLower(text))
	a := &Analysis{
		Text:    text,
		Chars:   make([]CharScore, len(runes)),
		display: []rune(text),
	}
	if len(runes) == 0 {
		return a
	}

	var unigramBits, contextBits float64
	for i, r := range runes {
		up := e.UnigramProbability(r)
		cp := e.ContextProbability(runes[:i], r)
		score := CharScore{
			Index:       i,
			Char:        r,
			ContextKey:  contextKey(runes[:i]),
			UnigramProb: up,
			ContextProb: cp,
			UnigramBits: Surprisal(up),
			ContextBits: Surprisal(cp),
		}
		unigramBits += score.UnigramBits
		contextBits += score.ContextBits
		a.Chars[i] = score
	}

	n := float64(len(runes))
	a.Result = PerplexityResult{
		Unigram: math.Exp2(unigramBits / n),
		Context: math.Exp2(contextBits / n),
	}
	return a
}

// ProbabilityAt returns the probability of the character at pos under both
// models, given its true preceding context. Out-of-range positions yield 0.
func (e *PerplexityEvaluator) ProbabilityAt(text string, pos int) (unigram, context float64) {
	runes := []rune(strings.ToLower(text))
	if pos < 0 || pos >= len(runes) {
		return 0, 0
	}
	return e.UnigramProbability(runes[pos]), e.ContextProbability(runes[:pos], runes[pos])
}

// TopUnigram returns the k most probable characters of the unigram model.
// k <= 0 returns the whole ranking.
func (e *PerplexityEvaluator) TopUnigram(k int) []Prediction {
	return rank(e.unigram.Entries(), k)
}

// TopPredictions returns the k most probable next characters after context
// under the context model. An empty context has no predictions; a context the
// table does not know falls back to the unigram ranking.
func (e *PerplexityEvaluator) TopPredictions(context string, k int) []Prediction {
	if context == "" {
		return nil
	}
	if inner, ok := e.context.Lookup(contextKey([]rune(context))); ok {
		return rank(inner.Entries(), k)
	}
	return e.TopUnigram(k)
}

// Evaluate scores text with DefaultEvaluator.
func Evaluate(text string) PerplexityResult {
	return DefaultEvaluator.Evaluate(text)
}

// Analyze scores text with DefaultEvaluator and keeps the breakdown.
func Analyze(text string) *Analysis {
	return DefaultEvaluator.Analyze(text)
}

// rank sorts descending by probability. The sort is stable, so ties keep the
// table's definition order.
func rank(entries []Prediction, k int) []Prediction {
	slices.SortStableFunc(entries, func(a, b Prediction) int {
		return cmp.Compare(b.Prob, a.Prob)
	})
	if k > 0 && k < len(entries) {
		entries = entries[:k]
	}
	return entries
}

// contextKey returns the lower-cased last ContextOrder characters.
func contextKey(context []rune) string {
	if len(context) > ContextOrder {
		context = context[len(context)-ContextOrder:]
	}
	return strings.ToLower(string(context))
}

func toLower(r rune) rune {
	return unicode.ToLower(r)
}

// ClampCursor keeps a cursor inside a text of n characters.
func ClampCursor(pos, n int) int {
	if n <= 0 || pos < 0 {
		return 0
	}
	if pos >= n {
		return n - 1
	}
	return pos
}

// MoveCursor moves pos by delta, refusing moves that leave the text.
func MoveCursor(pos, delta, n int) int {
	next := pos + delta
	if next < 0 || next >= n {
		return pos
	}
	return next
}

// GaugeFill returns the bar width, in percent, for a perplexity gauge. Lower
// perplexity fills more of the bar.
func GaugeFill(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	pct := (value - min) / (max - min) * 100
	pct = math.Min(100, math.Max(0, pct))
	return 100 - pct
}
