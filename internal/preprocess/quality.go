package preprocess

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Quality scores text in [0,1] as the mean of four signals: sentence length
// variance, unique word ratio, punctuation density and paragraph structure.
func Quality(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	return (varianceScore(text) + uniqueScore(words) + punctScore(text) + paragraphScore(text)) / 4
}

// varianceScore saturates at a variance of 50 words².
func varianceScore(text string) float64 {
	var lengths []float64
	for _, s := range sentenceEnd.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			lengths = append(lengths, float64(len(strings.Fields(s))))
		}
	}
	if len(lengths) < 2 {
		return 0
	}
	mean := 0.0
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(len(lengths))
	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))
	return math.Min(variance/50, 1)
}

// uniqueScore maps a unique ratio of 0.3 to 0 and 0.7 or more to 1.
func uniqueScore(words []string) float64 {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	ratio := float64(len(seen)) / float64(len(words))
	return clamp01((ratio - 0.3) / 0.4)
}

// punctScore is 1 for densities in [0.02, 0.08] and falls off linearly.
func punctScore(text string) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	punct := 0
	for _, r := range text {
		if r < utf8.RuneSelf && strings.ContainsRune(asciiPunct, r) {
			punct++
		}
	}
	density := float64(punct) / float64(n)
	switch {
	case density < 0.02:
		return density / 0.02
	case density <= 0.08:
		return 1
	default:
		return math.Max(0, 1-(density-0.08)/0.08)
	}
}

func paragraphScore(text string) float64 {
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs > 1 {
		return 1
	}
	return 0
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
