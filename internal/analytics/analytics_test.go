package analytics

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	s, err := Summarize([]float64{4, 1, 3, 2, 5})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Count != 5 || s.Min != 1 || s.Max != 5 {
		t.Errorf("count/min/max = %d/%v/%v", s.Count, s.Min, s.Max)
	}
	if !approx(s.Mean, 3) || !approx(s.Median, 3) || !approx(s.Q1, 2) || !approx(s.Q3, 4) {
		t.Errorf("unexpected summary %+v", s)
	}
	if !approx(s.StdDev, math.Sqrt(2.5)) {
		t.Errorf("StdDev = %v; want %v", s.StdDev, math.Sqrt(2.5))
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s, err := Summarize([]float64{750000})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.StdDev != 0 || s.Median != 750000 || s.Q1 != 750000 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if _, err := Summarize(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v; want ErrNoData", err)
	}
	if _, err := Distribution(nil, 4); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v; want ErrNoData", err)
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	tests := []struct {
		q    float64
		want float64
	}{
		{0, 10},
		{1, 40},
		{0.5, 25},
		{0.25, 17.5},
		{-1, 10},
		{2, 40},
	}
	for _, tt := range tests {
		got, err := Quantile(values, tt.q)
		if err != nil {
			t.Fatalf("Quantile: %v", err)
		}
		if !approx(got, tt.want) {
			t.Errorf("Quantile(%v) = %v; want %v", tt.q, got, tt.want)
		}
	}
}

func TestDistributionQuantileEdges(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	buckets, err := Distribution(values, 4)
	if err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	if len(buckets) != 4 {
		t.Fatalf("got %d buckets; want 4", len(buckets))
	}
	wantEdges := []float64{1, 3, 5, 7, 9}
	total := 0
	for i, b := range buckets {
		if b.Lower != wantEdges[i] || b.Upper != wantEdges[i+1] {
			t.Errorf("bucket %d = [%v, %v]; want [%v, %v]", i, b.Lower, b.Upper, wantEdges[i], wantEdges[i+1])
		}
		total += b.Count
	}
	if total != len(values) {
		t.Errorf("bucket counts sum to %d; want %d", total, len(values))
	}
	if buckets[3].Count != 3 {
		t.Errorf("last bucket count = %d; want 3 (upper edge inclusive)", buckets[3].Count)
	}
}

func TestDistributionFallsBackToEqualWidth(t *testing.T) {
	values := []float64{100, 100, 100, 100, 100, 100, 200, 500}
	buckets, err := Distribution(values, 4)
	if err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	wantLower := []float64{100, 200, 300, 400}
	wantCount := []int{6, 1, 0, 1}
	for i, b := range buckets {
		if b.Lower != wantLower[i] || b.Count != wantCount[i] {
			t.Errorf("bucket %d = %+v; want lower %v count %d", i, b, wantLower[i], wantCount[i])
		}
	}
}

func TestDistributionSinglePrice(t *testing.T) {
	buckets, err := Distribution([]float64{5e5, 5e5, 5e5}, 5)
	if err != nil {
		t.Fatalf("Distribution: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Count != 3 {
		t.Fatalf("unexpected buckets %+v", buckets)
	}
	if buckets[0].Label != "500.000 TL - 500.000 TL" {
		t.Errorf("Label = %q", buckets[0].Label)
	}
}
