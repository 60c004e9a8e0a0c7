package processors

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/fbruhn/sprechzeit/pkg/frame"
	"github.com/fbruhn/sprechzeit/pkg/pipeline"
)

const (
	// phoneticThreshold is the minimum Jaro-Winkler score for a word whose
	// Double Metaphone code overlaps a vocabulary entry.
	phoneticThreshold = 0.70
	// fuzzyThreshold is the minimum Jaro-Winkler score when no phonetic
	// overlap exists. Higher, because pure string similarity is weaker
	// evidence than matching pronunciation.
	fuzzyThreshold = 0.85
	// minCorrectLen skips very short tokens, which phonetically collide with
	// half the language.
	minCorrectLen = 4
)

// Corrector repairs STT misrecognitions of practice vocabulary: doctor names,
// "Akutsprechstunde", street names. Words in final transcripts are matched
// against the vocabulary by Double Metaphone code overlap and ranked by
// Jaro-Winkler similarity; a confident match replaces the recognised word
// before the transcript reaches the conversation context.
//
// Partial transcripts pass through untouched, they are observability-only.
type Corrector struct {
	vocabulary []string
	// codes holds the Double Metaphone codes per vocabulary entry, computed
	// once at construction.
	codes []map[string]struct{}
}

// NewCorrector creates a corrector over the given vocabulary. An empty
// vocabulary yields a pass-through stage.
func NewCorrector(vocabulary []string) *Corrector {
	c := &Corrector{vocabulary: vocabulary}
	for _, entry := range vocabulary {
		c.codes = append(c.codes, metaphoneCodes(strings.Fields(strings.ToLower(entry))))
	}
	return c
}

// Name implements pipeline.Processor.
func (c *Corrector) Name() string { return "correct" }

// Process implements pipeline.Processor.
func (c *Corrector) Process(ctx context.Context, f frame.Frame, dir frame.Direction, out pipeline.Emitter) error {
	tr, ok := f.(*frame.TranscriptText)
	if !ok || dir != frame.Downstream || !tr.Transcript.IsFinal || len(c.vocabulary) == 0 {
		return pipeline.Forward(ctx, f, dir, out)
	}

	corrected := c.correctText(tr.Transcript.Text)
	if corrected == tr.Transcript.Text {
		return pipeline.Forward(ctx, f, dir, out)
	}

	t := tr.Transcript
	t.Text = corrected
	return out.Emit(ctx, frame.NewTranscriptText(t), dir)
}

// correctText replaces each confidently matched word, preserving the
// surrounding text and the original word's trailing punctuation.
func (c *Corrector) correctText(text string) string {
	words := strings.Fields(text)
	changed := false
	for i, w := range words {
		core := strings.TrimRight(w, ".,!?;:")
		if len([]rune(core)) < minCorrectLen {
			continue
		}
		if match, ok := c.matchWord(core); ok && !strings.EqualFold(match, core) {
			words[i] = match + w[len(core):]
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

// matchWord finds the best vocabulary entry for word. Phonetic candidates
// (shared Double Metaphone code) win at the lower threshold; otherwise a pure
// Jaro-Winkler pass applies the stricter fuzzy threshold.
func (c *Corrector) matchWord(word string) (string, bool) {
	lower := strings.ToLower(word)
	wordCodes := metaphoneCodes([]string{lower})

	best := ""
	bestScore := 0.0
	bestPhonetic := false

	for i, entry := range c.vocabulary {
		entryLower := strings.ToLower(entry)
		score := matchr.JaroWinkler(lower, entryLower, false)
		// For multi-word entries also try the best single-token score.
		for _, tok := range strings.Fields(entryLower) {
			if s := matchr.JaroWinkler(lower, tok, false); s > score {
				score = s
			}
		}

		phonetic := codesOverlap(wordCodes, c.codes[i])
		switch {
		case phonetic && score >= phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = entry, score, true
			}
		case !phonetic && !bestPhonetic && score >= fuzzyThreshold && score > bestScore:
			best, bestScore = entry, score
		}
	}
	return best, best != ""
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

var _ pipeline.Processor = (*Corrector)(nil)
