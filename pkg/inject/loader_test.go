package inject

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/page/pagetest"
)

func newLoader(t *testing.T) (*Loader, *pagetest.Fake) {
	t.Helper()
	fake := pagetest.New()
	l := NewLoader(bridge.New(fake, nil), nil)
	l.SettleDelay = 0
	return l, fake
}

func TestProbeVersion(t *testing.T) {
	l, fake := newLoader(t)
	fake.StubValue("window.Debug", "2.3000.1020")

	v, err := l.ProbeVersion(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "2.3000.1020", v)
}

func TestProbeVersionAbsentIsFatal(t *testing.T) {
	l, _ := newLoader(t)

	_, err := l.ProbeVersion(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
}

func TestInjectAuthLayerModern(t *testing.T) {
	l, fake := newLoader(t)

	require.NoError(t, l.InjectAuthLayer(context.Background(), TierModern))

	require.Len(t, fake.Evaluations, 1)
	require.Contains(t, fake.Evaluations[0], "WAWebSocketModel")
}

func TestInjectAuthLayerLegacyPatchesErrorFirst(t *testing.T) {
	l, fake := newLoader(t)

	require.NoError(t, l.InjectAuthLayer(context.Background(), TierLegacy))

	require.Len(t, fake.Evaluations, 2)
	require.Contains(t, fake.Evaluations[0], "originalError")
	require.Contains(t, fake.Evaluations[1], "moduleRaid")
}

func TestInjectStoreLayerModern(t *testing.T) {
	l, fake := newLoader(t)
	fake.StubValue("window.Store != undefined", true)

	require.NoError(t, l.InjectStoreLayer(context.Background(), TierModern))

	var sawStore, sawUtils bool
	for _, src := range fake.Evaluations {
		if strings.Contains(src, "WAWebCollections") {
			sawStore = true
		}
		if strings.Contains(src, "window.WWebJS = {}") {
			sawUtils = true
		}
	}
	require.True(t, sawStore, "store surface was not injected")
	require.True(t, sawUtils, "util helpers were not injected")
}

func TestInjectStoreLayerAbsentSurfaceIsContractMissing(t *testing.T) {
	l, fake := newLoader(t)
	fake.StubValue("window.Store != undefined", false)

	err := l.InjectStoreLayer(context.Background(), TierModern)
	require.ErrorIs(t, err, bridge.ErrContractMissing)
}

func TestInjectStoreLayerLegacy(t *testing.T) {
	l, fake := newLoader(t)
	fake.StubValue("window.Store != undefined", true)

	require.NoError(t, l.InjectStoreLayer(context.Background(), TierLegacy))

	var sawScan bool
	for _, src := range fake.Evaluations {
		if strings.Contains(src, "window.mR.findModule") {
			sawScan = true
		}
	}
	require.True(t, sawScan, "legacy store surface was not injected")
}

func TestContractPresent(t *testing.T) {
	l, fake := newLoader(t)

	present, err := l.ContractPresent(context.Background())
	require.NoError(t, err)
	require.False(t, present)

	fake.StubValue("typeof window.Store", true)
	present, err = l.ContractPresent(context.Background())
	require.NoError(t, err)
	require.True(t, present)
}
