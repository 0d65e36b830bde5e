package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mgiordano/wabridge/pkg/authn"
	"github.com/mgiordano/wabridge/pkg/config"
	"github.com/mgiordano/wabridge/pkg/events"
	"github.com/mgiordano/wabridge/pkg/page"
	"github.com/mgiordano/wabridge/pkg/page/pagetest"
	"github.com/mgiordano/wabridge/pkg/webcache"
)

type trackingStrategy struct {
	authn.Base
	needed  int
	logouts int
}

func (s *trackingStrategy) OnAuthenticationNeeded(context.Context) (authn.Result, error) {
	s.needed++
	return authn.Result{}, nil
}

func (s *trackingStrategy) Logout(context.Context) error {
	s.logouts++
	return nil
}

func testOptions(t *testing.T) config.Options {
	t.Helper()
	opts := config.Default()
	opts.ClientID = "testclient"
	opts.LogPath = ""
	opts.CachePath = t.TempDir()
	opts.DataPath = t.TempDir()
	return opts
}

// stubHappyPath scripts the page the way a modern build behaves during a
// fresh QR pairing.
func stubHappyPath(fake *pagetest.Fake) {
	fake.StubValue("window.Debug", "2.3000.1020")
	fake.StubValue("AuthStore.AppState.state", "UNPAIRED")
	fake.StubValue("window.Store != undefined", true)
	fake.StubValue("window.Store.Conn.serialize", map[string]any{
		"pushname": "Tester",
		"platform": "web",
		"wid":      map[string]any{"_serialized": "12025550108@c.us"},
		"me":       map[string]any{"_serialized": "12025550108@c.us"},
	})
}

func newTestClient(t *testing.T, opts config.Options, strategy authn.Strategy) (*Client, *pagetest.Fake, *[]string) {
	t.Helper()
	fake := pagetest.New()
	stubHappyPath(fake)

	c, err := New(opts, strategy, func(context.Context, string) (page.Page, error) {
		return fake, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var names []string
	c.On("*", func(ev events.Event) { names = append(names, ev.Name) })
	return c, fake, &names
}

func TestInitializeRunsQRFlow(t *testing.T) {
	strategy := &trackingStrategy{}
	c, fake, _ := newTestClient(t, testOptions(t), strategy)

	require.NoError(t, c.Initialize(context.Background()))

	require.Equal(t, 1, strategy.needed)
	require.True(t, fake.Exposed("onQRChangedEvent"))

	v, err := c.RemoteVersion(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "2.3000.1020", v)
}

func TestSyncCompletionReachesReady(t *testing.T) {
	c, fake, names := newTestClient(t, testOptions(t), &trackingStrategy{})
	require.NoError(t, c.Initialize(context.Background()))

	_, err := fake.Invoke("onAppStateHasSyncedEvent")
	require.NoError(t, err)

	require.Contains(t, *names, events.Authenticated)
	require.Contains(t, *names, events.Ready)
	authIdx := indexOf(*names, events.Authenticated)
	readyIdx := indexOf(*names, events.Ready)
	require.Less(t, authIdx, readyIdx)

	info := c.Info()
	require.NotNil(t, info)
	require.Equal(t, "Tester", info.Pushname)
	require.Equal(t, "12025550108@c.us", info.WID.Serialized)

	// the full relay is attached once the contract is installed
	require.True(t, fake.Exposed("onAddMessageEvent"))
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func TestPairedSessionSkipsAuthentication(t *testing.T) {
	strategy := &trackingStrategy{}
	c, fake, _ := newTestClient(t, testOptions(t), strategy)
	fake.StubValue("AuthStore.AppState.state", "CONNECTED")

	require.NoError(t, c.Initialize(context.Background()))

	require.Zero(t, strategy.needed)
	require.False(t, fake.Exposed("onQRChangedEvent"))
}

func TestLogoutNavigationDisconnectsOnceAndReinjects(t *testing.T) {
	strategy := &trackingStrategy{}
	c, fake, names := newTestClient(t, testOptions(t), strategy)
	require.NoError(t, c.Initialize(context.Background()))
	*names = nil

	fake.TriggerNavigation("https://web.whatsapp.com/?post_logout=1")

	disconnects := 0
	for _, n := range *names {
		if n == events.Disconnected {
			disconnects++
		}
	}
	require.Equal(t, 1, disconnects)
	require.Equal(t, 1, strategy.logouts)

	// the supervisor re-ran the injection cycle on the fresh document
	authInjections := 0
	for _, src := range fake.Evaluations {
		if strings.Contains(src, "WAWebSocketModel") && strings.Contains(src, "AuthStore") {
			authInjections++
		}
	}
	require.GreaterOrEqual(t, authInjections, 2)
}

func TestRemoteLogoutDisconnectsOnceAcrossRedirects(t *testing.T) {
	strategy := &trackingStrategy{}
	c, fake, names := newTestClient(t, testOptions(t), strategy)
	require.NoError(t, c.Initialize(context.Background()))
	*names = nil

	// the page reports the logout, then the browser walks through the
	// post_logout URL and on to the landing page
	done := make(chan struct{})
	go func() {
		_, _ = fake.Invoke("onLogoutEvent")
		close(done)
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.navWaiters) > 0
	}, time.Second, time.Millisecond, "logout handler never blocked on navigation")

	fake.TriggerNavigation("https://web.whatsapp.com/?post_logout=1")
	<-done
	fake.TriggerNavigation("https://web.whatsapp.com/")

	disconnects := 0
	for _, n := range *names {
		if n == events.Disconnected {
			disconnects++
		}
	}
	require.Equal(t, 1, disconnects)
	require.Equal(t, 1, strategy.logouts)
}

func TestSendSeenServerRejectionIsSoftFailure(t *testing.T) {
	c, fake, _ := newTestClient(t, testOptions(t), &trackingStrategy{})
	require.NoError(t, c.Initialize(context.Background()))

	fake.Stub("sendSeen", func(string) (any, error) {
		return nil, &page.EvalError{Message: "ServerStatusCodeError: 500"}
	})

	ok, err := c.SendSeen(context.Background(), "12025550108@c.us")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlainNavigationReinjectsWithoutDisconnect(t *testing.T) {
	strategy := &trackingStrategy{}
	c, fake, names := newTestClient(t, testOptions(t), strategy)
	require.NoError(t, c.Initialize(context.Background()))
	*names = nil

	fake.TriggerNavigation("https://web.whatsapp.com/")

	require.NotContains(t, *names, events.Disconnected)
	require.Zero(t, strategy.logouts)
}

func TestWebVersionWriteThrough(t *testing.T) {
	opts := testOptions(t)
	c, fake, _ := newTestClient(t, opts, &trackingStrategy{})
	require.NoError(t, c.Initialize(context.Background()))

	fake.FeedResponse(config.RemoteURL, "<html>app</html>")
	_, err := fake.Invoke("onAppStateHasSyncedEvent")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(opts.CachePath, "2.3000.1020.html"))
	require.NoError(t, err)
	require.Equal(t, "<html>app</html>", string(data))
}

func TestWebVersionReadThrough(t *testing.T) {
	opts := testOptions(t)
	opts.WebVersion = "2.3000.1020"
	require.NoError(t, webcache.NewLocal(opts.CachePath, false).Persist("<html>pinned</html>", "2.3000.1020"))

	c, fake, _ := newTestClient(t, opts, &trackingStrategy{})
	require.NoError(t, c.Initialize(context.Background()))

	html, pinned := fake.Snapshot(config.RemoteURL)
	require.True(t, pinned)
	require.Equal(t, "<html>pinned</html>", html)
}

func TestDestroyIsIdempotent(t *testing.T) {
	c, _, _ := newTestClient(t, testOptions(t), &trackingStrategy{})
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.Destroy(context.Background()))
	require.NoError(t, c.Destroy(context.Background()))
}

func TestClientIDGenerated(t *testing.T) {
	opts := testOptions(t)
	opts.ClientID = ""
	c, err := New(opts, nil, func(context.Context, string) (page.Page, error) {
		return pagetest.New(), nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.ClientID())
}
