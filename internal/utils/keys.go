package utils

// CanonicalPairKey orders two participant identifiers deterministically
// (lexicographically smaller first) so the same unordered pair always
// yields the same key.
func CanonicalPairKey(a, b string) string {
	low, high := OrderPair(a, b)
	return low + ":" + high
}

// OrderPair returns the pair with the lexicographically smaller
// identifier first.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
