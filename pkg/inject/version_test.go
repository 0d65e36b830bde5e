package inject

import "testing"

func TestTierFor(t *testing.T) {
	cases := []struct {
		version string
		want    Tier
	}{
		{"2.3000.1014590669", TierModern},
		{"2.3000.0", TierModern},
		{"2.2999.99", TierLegacy},
		{"2.2412.54", TierLegacy},
		{"2.3001.5", TierModern},
		{"2", TierLegacy},
		{"", TierLegacy},
		{"2.notanumber.5", TierLegacy},
	}
	for _, tc := range cases {
		if got := TierFor(tc.version); got != tc.want {
			t.Errorf("TierFor(%q) = %v, want %v", tc.version, got, tc.want)
		}
	}
}
