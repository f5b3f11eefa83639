package engine

import "testing"

func TestScoreClampsBothComponents(t *testing.T) {
	s := score(1000, 100*1024*1024)
	if s != 1.0 {
		t.Errorf("expected fully-saturated score 1.0, got %v", s)
	}
}

func TestScoreZeroActivity(t *testing.T) {
	if s := score(0, 0); s != 0 {
		t.Errorf("expected 0, got %v", s)
	}
}

func TestScoreWeighting(t *testing.T) {
	// 20 leechers alone saturates the leech component (0.6 weight).
	s := score(20, 0)
	if s != 0.6 {
		t.Errorf("expected 0.6, got %v", s)
	}
	// 1 MiB/s alone saturates the speed component (0.4 weight).
	s = score(0, 1048576)
	if s != 0.4 {
		t.Errorf("expected 0.4, got %v", s)
	}
}

func TestScoreBucket(t *testing.T) {
	cases := []struct {
		s    float64
		want string
	}{
		{0.9, "high"},
		{0.8, "high"},
		{0.6, "medium"},
		{0.5, "medium"},
		{0.3, "low"},
		{0.2, "low"},
		{0.1, "ignored"},
		{0, "ignored"},
	}
	for _, c := range cases {
		if got := scoreBucket(c.s); got != c.want {
			t.Errorf("scoreBucket(%v) = %q, want %q", c.s, got, c.want)
		}
	}
}
