package domain

import "strings"

const edgePunct = " .,;:!?\"'`“”‘’«»"

// NormalizeText is the ingredient identity key: lower-cased, inner
// whitespace collapsed, sentence punctuation and quotes trimmed from both
// ends. Brackets are kept so "f(x)" stays intact.
func NormalizeText(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.Trim(s, edgePunct)
}

// PairKey is the unordered key of two bound texts.
func PairKey(a, b string) string {
	na, nb := NormalizeText(a), NormalizeText(b)
	if nb < na {
		na, nb = nb, na
	}
	return na + "\x1f" + nb
}

// TripleKey identifies an artifact triple regardless of bound order.
func TripleKey(boundA, boundB, bounded string) string {
	return PairKey(boundA, boundB) + "\x1e" + NormalizeText(bounded)
}

// TripleKeyOf is TripleKey for an artifact.
func TripleKeyOf(a *Artifact) string {
	return TripleKey(a.BoundA.Text, a.BoundB.Text, a.Bounded.Text)
}
