package similarity

import (
	"math"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}
	score, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity error: %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("score = %v, want 1", score)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity error: %v", err)
	}
	if math.Abs(score) > 1e-9 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestCosineSimilarityErrors(t *testing.T) {
	if _, err := CosineSimilarity(nil, []float32{1}); err == nil {
		t.Error("empty vector should error")
	}
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1}); err == nil {
		t.Error("dimension mismatch should error")
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); err == nil {
		t.Error("zero norm should error")
	}
	nan := float32(math.NaN())
	if _, err := CosineSimilarity([]float32{nan, 1}, []float32{1, 0}); err == nil {
		t.Error("non-finite value should error")
	}
}
