// Package dtw scores how closely two feature sequences match using dynamic
// time warping with a Sakoe-Chiba band.
package dtw

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxDistance marks a comparison that could not be made.
const MaxDistance = math.MaxFloat64

// Result is the outcome of one comparison.
type Result struct {
	Distance           float64 `json:"distance"`
	NormalizedDistance float64 `json:"normalizedDistance"`
	IsMatch            bool    `json:"isMatch"`
	Confidence         float64 `json:"confidence"`
	PathLength         int     `json:"pathLength"`
}

// NoMatch is returned for empty or incomparable input.
var NoMatch = Result{Distance: MaxDistance, NormalizedDistance: MaxDistance}

// Reference is a named sequence to search against.
type Reference struct {
	Name     string
	Sequence []float64
}

// BestMatch identifies the winning reference.
type BestMatch struct {
	Name   string
	Index  int
	Result Result
}

// Advanced combines DTW confidence with shape similarity measures.
type Advanced struct {
	DTW                Result  `json:"dtw"`
	CosineSimilarity   float64 `json:"cosineSimilarity"`
	PearsonCorrelation float64 `json:"pearsonCorrelation"`
	CombinedConfidence float64 `json:"combinedConfidence"`
	StrongMatch        bool    `json:"strongMatch"`
}

// Match compares two sequences. Equal lengths use Euclidean distance
// normalized by length; different lengths use banded DTW normalized by the
// warping path length.
func Match(a, b []float64, threshold float64) Result {
	if len(a) == 0 || len(b) == 0 {
		return NoMatch
	}
	if len(a) == len(b) {
		d := floats.Distance(a, b, 2)
		return score(d, len(a), threshold)
	}
	d, path := warp(len(a), len(b), func(i, j int) float64 {
		return math.Abs(a[i] - b[j])
	})
	return score(d, path, threshold)
}

// MatchSequences runs banded DTW over frame vectors (e.g. per-frame MFCCs)
// with Euclidean local distance.
func MatchSequences(a, b [][]float64, threshold float64) Result {
	if len(a) == 0 || len(b) == 0 {
		return NoMatch
	}
	d, path := warp(len(a), len(b), func(i, j int) float64 {
		if len(a[i]) != len(b[j]) {
			return math.Inf(1)
		}
		return floats.Distance(a[i], b[j], 2)
	})
	return score(d, path, threshold)
}

// FindBestMatch returns the matching reference with the lowest normalized
// distance. Ties keep the earliest reference.
func FindBestMatch(query []float64, refs []Reference, threshold float64) (BestMatch, bool) {
	best := BestMatch{Index: -1}
	for i, ref := range refs {
		r := Match(query, ref.Sequence, threshold)
		if !r.IsMatch {
			continue
		}
		if best.Index < 0 || r.NormalizedDistance < best.Result.NormalizedDistance {
			best = BestMatch{Name: ref.Name, Index: i, Result: r}
		}
	}
	return best, best.Index >= 0
}

// AdvancedMatch averages DTW confidence, cosine similarity and Pearson
// correlation, each clamped to [0, 1]. Shape measures use the common prefix
// when lengths differ.
func AdvancedMatch(a, b []float64, threshold float64) Advanced {
	r := Match(a, b, threshold)
	if len(a) == 0 || len(b) == 0 {
		return Advanced{DTW: r}
	}
	n := min(len(a), len(b))
	cos := CosineSimilarity(a[:n], b[:n])
	pearson := Pearson(a[:n], b[:n])
	combined := (r.Confidence + clamp01(cos) + clamp01(pearson)) / 3
	return Advanced{
		DTW:                r,
		CosineSimilarity:   cos,
		PearsonCorrelation: pearson,
		CombinedConfidence: combined,
		StrongMatch:        combined > StrongMatchThreshold,
	}
}

// CosineSimilarity returns a.b / (|a||b|), or 0 if either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Pearson returns the correlation coefficient, or 0 when undefined.
func Pearson(a, b []float64) float64 {
	if len(a) < 2 {
		return 0
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// Confidence maps a normalized distance onto [0, 1].
func Confidence(normalized, threshold float64) float64 {
	if threshold <= 0 {
		if normalized == 0 {
			return 1
		}
		return 0
	}
	return max(0, 1-normalized/threshold)
}

func score(distance float64, path int, threshold float64) Result {
	if math.IsInf(distance, 1) || path == 0 {
		return NoMatch
	}
	nd := distance / float64(path)
	return Result{
		Distance:           distance,
		NormalizedDistance: nd,
		IsMatch:            nd <= threshold,
		Confidence:         Confidence(nd, threshold),
		PathLength:         path,
	}
}

// BandWidth returns the Sakoe-Chiba radius for sequences of length m and n,
// widened so the final cell stays reachable.
func BandWidth(m, n int) int {
	w := max(1, int(math.Round(BandFraction*float64(max(m, n)))))
	return max(w, abs(m-n))
}

// warp fills the banded cost matrix and backtracks the optimal path.
func warp(m, n int, local func(i, j int) float64) (float64, int) {
	w := BandWidth(m, n)
	inf := math.Inf(1)

	cost := make([][]float64, m+1)
	for i := range cost {
		cost[i] = make([]float64, n+1)
		for j := range cost[i] {
			cost[i][j] = inf
		}
	}
	cost[0][0] = 0

	for i := 1; i <= m; i++ {
		lo, hi := max(1, i-w), min(n, i+w)
		for j := lo; j <= hi; j++ {
			prev := min(cost[i-1][j], cost[i][j-1], cost[i-1][j-1])
			if math.IsInf(prev, 1) {
				continue
			}
			cost[i][j] = local(i-1, j-1) + prev
		}
	}
	if math.IsInf(cost[m][n], 1) {
		return inf, 0
	}

	path := 1
	for i, j := m, n; i > 1 || j > 1; path++ {
		switch {
		case i == 1:
			j--
		case j == 1:
			i--
		default:
			diag, up, left := cost[i-1][j-1], cost[i-1][j], cost[i][j-1]
			switch {
			case diag <= up && diag <= left:
				i, j = i-1, j-1
			case up <= left:
				i--
			default:
				j--
			}
		}
	}
	return cost[m][n], path
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
