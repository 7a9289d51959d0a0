// Package analytics computes price statistics over listing rows.
package analytics

import (
	"errors"
	"math"
	"sort"

	"emlak-aggregator/internal/normalize"
)

// ErrNoData is returned when there are no prices to summarize
var ErrNoData = errors.New("no data")

// Summary holds descriptive statistics of a price sample
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// Summarize computes the summary of values. The standard deviation is the
// sample one and is zero for a single value.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoData
	}
	xs := sorted(values)

	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(len(xs))

	var sd float64
	if len(xs) > 1 {
		var sq float64
		for _, v := range xs {
			sq += (v - mean) * (v - mean)
		}
		sd = math.Sqrt(sq / float64(len(xs)-1))
	}

	return Summary{
		Count:  len(xs),
		Mean:   mean,
		StdDev: sd,
		Min:    xs[0],
		Q1:     quantile(xs, 0.25),
		Median: quantile(xs, 0.5),
		Q3:     quantile(xs, 0.75),
		Max:    xs[len(xs)-1],
	}, nil
}

// Quantile returns the q-quantile of values with linear interpolation
// between closest ranks
func Quantile(values []float64, q float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoData
	}
	return quantile(sorted(values), q), nil
}

func quantile(xs []float64, q float64) float64 {
	q = min(max(q, 0), 1)
	pos := q * float64(len(xs)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return xs[lo]
	}
	return xs[lo] + (pos-float64(lo))*(xs[hi]-xs[lo])
}

func sorted(values []float64) []float64 {
	xs := make([]float64, len(values))
	copy(xs, values)
	sort.Float64s(xs)
	return xs
}

// Bucket is one price range of a distribution. Lower is inclusive; Upper is
// exclusive except for the last bucket.
type Bucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
	Label string  `json:"label"`
}

// Distribution splits values into n buckets at quantile edges, so each
// bucket holds roughly the same number of listings. When repeated prices
// collapse two edges the buckets become equal-width instead.
func Distribution(values []float64, n int) ([]Bucket, error) {
	if len(values) == 0 {
		return nil, ErrNoData
	}
	if n < 1 {
		n = 1
	}
	xs := sorted(values)
	lo, hi := xs[0], xs[len(xs)-1]
	if lo == hi {
		return []Bucket{bucket(lo, hi, len(xs))}, nil
	}

	edges := make([]float64, n+1)
	collapsed := false
	for i := range edges {
		edges[i] = quantile(xs, float64(i)/float64(n))
		if i > 0 && edges[i] <= edges[i-1] {
			collapsed = true
		}
	}
	if collapsed {
		width := (hi - lo) / float64(n)
		for i := range edges {
			edges[i] = lo + float64(i)*width
		}
		edges[n] = hi
	}

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i] = bucket(edges[i], edges[i+1], 0)
	}
	for _, v := range xs {
		// first edge strictly above v, minus one
		i := sort.Search(len(edges), func(j int) bool { return edges[j] > v }) - 1
		i = min(max(i, 0), n-1)
		buckets[i].Count++
	}
	return buckets, nil
}

func bucket(lower, upper float64, count int) Bucket {
	return Bucket{
		Lower: lower,
		Upper: upper,
		Count: count,
		Label: normalize.FormatPrice(lower) + " - " + normalize.FormatPrice(upper),
	}
}
