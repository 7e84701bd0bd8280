// Package execution turns buy decisions into signed, submitted and
// confirmed transactions.
package execution

// SizeBuy maps a safety score onto a fraction of the configured buy ceiling.
// Higher-scoring tokens get a larger share; below 60 nothing is risked.
func SizeBuy(score int, maxLamports uint64) uint64 {
	switch {
	case score >= 90:
		return maxLamports
	case score >= 80:
		return maxLamports * 75 / 100
	case score >= 70:
		return maxLamports / 2
	case score >= 60:
		return maxLamports / 4
	default:
		return 0
	}
}
