package similarity

import (
	"context"
	"math"
	"time"
)

// ProgressInterval is the number of comparisons between progress callbacks.
const ProgressInterval = 5000

// PerceptualHash is a computed fingerprint for one file. The persisted fields
// are only filled when the hash comes from, or goes to, the cache.
type PerceptualHash struct {
	FileID       string    `json:"file_id"`
	Hash         string    `json:"hash"`
	AbsolutePath string    `json:"absolute_path,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	DateModified time.Time `json:"date_modified,omitempty"`
	HashType     string    `json:"hash_type,omitempty"`
	DateComputed time.Time `json:"date_computed,omitempty"`
}

// SimilarityGroup is a set of file IDs judged visually similar.
type SimilarityGroup struct {
	Files      []string `json:"files"`
	Similarity float64  `json:"similarity"`
}

// Distance returns the Hamming distance between two binary hash strings,
// or -1 when their lengths differ (no match possible).
func Distance(h1, h2 string) int {
	if len(h1) != len(h2) {
		return -1
	}
	d := 0
	for i := 0; i < len(h1); i++ {
		if h1[i] != h2[i] {
			d++
		}
	}
	return d
}

// Similarity returns the percentage of matching bits, rounded to 2 decimals.
// Hashes of unequal length are 0% similar.
func Similarity(h1, h2 string) float64 {
	d := Distance(h1, h2)
	if d < 0 || len(h1) == 0 {
		return 0
	}
	pct := float64(len(h1)-d) / float64(len(h1)) * 100
	return math.Round(pct*100) / 100
}

// GroupSimilar clusters hashes greedily in input order. Each unclaimed hash
// seeds a group and claims every later unclaimed hash whose similarity to the
// seed is at least threshold. Members are not compared with each other. Only
// groups with two or more files are returned, and a group's similarity is the
// highest score observed against its seed.
//
// onProgress, if set, is called every ProgressInterval comparisons and once at
// the end. It returns the groups and the number of comparisons performed.
func GroupSimilar(hashes []PerceptualHash, threshold float64, onProgress func(done, total int)) ([]SimilarityGroup, int) {
	groups, comparisons, _ := GroupSimilarContext(context.Background(), hashes, threshold, onProgress)
	return groups, comparisons
}

// GroupSimilarContext is GroupSimilar with cancellation checked at every
// progress interval.
func GroupSimilarContext(ctx context.Context, hashes []PerceptualHash, threshold float64, onProgress func(done, total int)) ([]SimilarityGroup, int, error) {
	n := len(hashes)
	total := n * (n - 1) / 2
	claimed := make([]bool, n)
	var groups []SimilarityGroup
	comparisons := 0

	for i := 0; i < n; i++ {
		if claimed[i] {
			continue
		}

		files := []string{hashes[i].FileID}
		best := 0.0

		for j := i + 1; j < n; j++ {
			if claimed[j] {
				continue
			}

			comparisons++
			if comparisons%ProgressInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, comparisons, err
				}
				if onProgress != nil {
					onProgress(comparisons, total)
				}
			}

			// hashes of different lengths never match, even at threshold 0
			if Distance(hashes[i].Hash, hashes[j].Hash) < 0 {
				continue
			}
			sim := Similarity(hashes[i].Hash, hashes[j].Hash)
			if sim >= threshold {
				files = append(files, hashes[j].FileID)
				claimed[j] = true
				if sim > best {
					best = sim
				}
			}
		}

		if len(files) > 1 {
			claimed[i] = true
			groups = append(groups, SimilarityGroup{Files: files, Similarity: best})
		}
	}

	if onProgress != nil {
		onProgress(comparisons, total)
	}
	return groups, comparisons, nil
}
