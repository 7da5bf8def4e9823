package models

import "testing"

func TestFeeCents(t *testing.T) {
	cases := []struct {
		amount int64
		want   int64
	}{
		{2000, 300},
		{10000, 1500},
		{1, 0},    // remainder stays with the payee
		{99, 14},  // 14.85 truncates down
		{100, 15},
	}
	for _, tc := range cases {
		if got := FeeCents(tc.amount); got != tc.want {
			t.Errorf("FeeCents(%d) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}
