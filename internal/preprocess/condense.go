package preprocess

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	sentencePattern = regexp.MustCompile(`(?U)[^.!?]+[.!?]+`)
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	paragraphBreak  = regexp.MustCompile(`\n\s*\n`)
)

type sentence struct {
	text      string
	paragraph int
}

// splitSentences breaks text into sentences tagged with their paragraph.
// Trailing text without terminal punctuation is kept as its own sentence.
func splitSentences(text string) []sentence {
	var out []sentence
	for p, para := range paragraphBreak.Split(text, -1) {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		end := 0
		for _, loc := range sentencePattern.FindAllStringIndex(para, -1) {
			if s := strings.TrimSpace(para[loc[0]:loc[1]]); s != "" {
				out = append(out, sentence{text: s, paragraph: p})
			}
			end = loc[1]
		}
		if rest := strings.TrimSpace(para[end:]); rest != "" {
			out = append(out, sentence{text: rest, paragraph: p})
		}
	}
	return out
}

// condense keeps the highest ranked sentences that fit in maxRunes and
// returns them in their original order, paragraphs preserved. It returns ""
// when no sentence fits.
func condense(text string, maxRunes int) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	scores := rankSentences(sentences)
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	keep := make([]bool, len(sentences))
	budget := maxRunes
	for _, idx := range order {
		// one separator rune per kept sentence, two for a paragraph break
		n := utf8.RuneCountInString(sentences[idx].text) + 2
		if n > budget {
			continue
		}
		keep[idx] = true
		budget -= n
	}

	var b strings.Builder
	last := -1
	for i, s := range sentences {
		if !keep[i] {
			continue
		}
		switch {
		case last < 0:
		case s.paragraph != last:
			b.WriteString("\n\n")
		default:
			b.WriteByte(' ')
		}
		b.WriteString(s.text)
		last = s.paragraph
	}
	return b.String()
}

// rankSentences scores sentences by normalized token frequency with
// stopwords filtered, damped by sentence length.
func rankSentences(sentences []sentence) []float64 {
	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, s := range sentences {
		tokens[i] = tokenPattern.FindAllString(strings.ToLower(s.text), -1)
		for _, tok := range tokens[i] {
			if _, stop := stopwords[tok]; stop {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	scores := make([]float64, len(sentences))
	for i, toks := range tokens {
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok]
		}
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = sum
	}
	return scores
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during",
		"before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
