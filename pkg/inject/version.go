package inject

import (
	"strconv"
	"strings"
)

// Tier selects which adapter payload family can normalize the remote page.
// Builds at or past the modern threshold expose their module registry
// directly; older builds need a module-scanning adapter.
type Tier string

const (
	TierLegacy Tier = "legacy"
	TierModern Tier = "modern"
)

// modernMinorThreshold is the minor ordinal at which the remote application
// started exposing its module registry ("comet" build line).
const modernMinorThreshold = 3000

// TierFor classifies a remote version string ("2.3000.102..."). The tier is
// fixed for a page load once chosen; a new navigation re-derives it.
func TierFor(version string) Tier {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return TierLegacy
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return TierLegacy
	}
	if minor >= modernMinorThreshold {
		return TierModern
	}
	return TierLegacy
}
