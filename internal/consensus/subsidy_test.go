package consensus

import "testing"

func TestSubsidy_Height0GetsFullAmount(t *testing.T) {
	if got := Subsidy(0, 50, 100); got != 50 {
		t.Errorf("Subsidy(0) = %d, want 50", got)
	}
}

func TestSubsidy_HalvesAtInterval(t *testing.T) {
	cases := []struct {
		height uint64
		want   uint64
	}{
		{0, 50}, {99, 50}, {100, 25}, {199, 25}, {200, 12}, {300, 6},
	}
	for _, c := range cases {
		if got := Subsidy(c.height, 50, 100); got != c.want {
			t.Errorf("Subsidy(%d) = %d, want %d", c.height, got, c.want)
		}
	}
}

func TestSubsidy_ReachesZero(t *testing.T) {
	if got := Subsidy(100*64, 50, 100); got != 0 {
		t.Errorf("Subsidy after 64 halvings should be 0, got %d", got)
	}
}

func TestSubsidy_NoHalvingWhenIntervalZero(t *testing.T) {
	if got := Subsidy(1_000_000, 50, 0); got != 50 {
		t.Errorf("halving_interval=0 should disable halving, got %d", got)
	}
}
