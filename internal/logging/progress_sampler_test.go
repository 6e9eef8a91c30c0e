package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "video", true},
		{3, "video", false},
		{24.9, "video", false},
		{25, "video", true},
		{40, "video", false},
		{100, "video", true},
		{100, "video", false},
		{5, "audio", true},
		{-1, "audio", false},
		{-1, "merge", true},
		{150, "merge", true},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d (%v%% %s): got %v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
}

func TestProgressSamplerDefaultsAndReset(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 10 {
		t.Fatalf("bucketSize = %v, want 10", s.bucketSize)
	}
	if !s.ShouldLog(12, "") {
		t.Fatal("first known percent should log")
	}
	if s.ShouldLog(15, "") {
		t.Fatal("same bucket should not log")
	}
	s.Reset()
	if !s.ShouldLog(15, "") {
		t.Fatal("reset should allow the bucket again")
	}

	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(50, "video") {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}
