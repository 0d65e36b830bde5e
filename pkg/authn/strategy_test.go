package authn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgiordano/wabridge/pkg/bridge"
	"github.com/mgiordano/wabridge/pkg/page/pagetest"
	"github.com/mgiordano/wabridge/pkg/session"
)

type testEnv struct {
	id       string
	dataPath string
	bridge   *bridge.Bridge
	dataDir  string
}

func (e *testEnv) ClientID() string        { return e.id }
func (e *testEnv) DataPath() string        { return e.dataPath }
func (e *testEnv) Bridge() *bridge.Bridge  { return e.bridge }
func (e *testEnv) SetUserDataDir(d string) { e.dataDir = d }

func TestLocalAuthCreatesProfileDir(t *testing.T) {
	base := t.TempDir()
	env := &testEnv{id: "primary", dataPath: base}

	a := NewLocalAuth("")
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(context.Background()))

	want, err := filepath.Abs(filepath.Join(base, "session-primary"))
	require.NoError(t, err)
	require.Equal(t, want, env.dataDir)

	info, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalAuthEmptyClientID(t *testing.T) {
	base := t.TempDir()
	env := &testEnv{dataPath: base}

	a := NewLocalAuth("")
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(context.Background()))
	require.Equal(t, "session", filepath.Base(env.dataDir))
}

func TestLocalAuthRejectsUnsafeClientID(t *testing.T) {
	env := &testEnv{id: "../escape", dataPath: t.TempDir()}

	a := NewLocalAuth("")
	a.Setup(env)
	require.Error(t, a.BeforeBrowserInitialized(context.Background()))
}

func TestLocalAuthLogoutRemovesProfile(t *testing.T) {
	env := &testEnv{id: "primary", dataPath: t.TempDir()}

	a := NewLocalAuth("")
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(context.Background()))
	require.NoError(t, a.Logout(context.Background()))

	_, err := os.Stat(a.UserDataDir())
	require.True(t, os.IsNotExist(err))
}

func TestStoreAuthFreshSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	env := &testEnv{id: "primary"}

	a := NewStoreAuth(store)
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(ctx))
	require.False(t, a.HasRestoredSession())

	result, err := a.OnAuthenticationNeeded(ctx)
	require.NoError(t, err)
	require.False(t, result.Failed, "an absent session means first pairing, not failure")
}

func TestStoreAuthRejectedRestoreAsksForRestart(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	require.NoError(t, store.Save(ctx, "primary", []byte(`{"k":"v"}`)))
	env := &testEnv{id: "primary"}

	a := NewStoreAuth(store)
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(ctx))
	require.True(t, a.HasRestoredSession())

	result, err := a.OnAuthenticationNeeded(ctx)
	require.NoError(t, err)
	require.True(t, result.Failed)
	require.True(t, result.Restart)
}

func TestStoreAuthPlantsRestoredBlob(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	require.NoError(t, store.Save(ctx, "primary", []byte(`{"cred":"abc"}`)))

	fake := pagetest.New()
	env := &testEnv{id: "primary", bridge: bridge.New(fake, nil)}

	a := NewStoreAuth(store)
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(ctx))
	require.NoError(t, a.AfterBrowserInitialized(ctx))

	require.Len(t, fake.Evaluations, 1)
	require.Contains(t, fake.Evaluations[0], "localStorage.setItem")
	require.Contains(t, fake.Evaluations[0], `"cred":"abc"`)
}

func TestStoreAuthSavesDumpOnReady(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()

	fake := pagetest.New()
	fake.StubValue("window.localStorage.length", `{"cred":"abc"}`)
	env := &testEnv{id: "primary", bridge: bridge.New(fake, nil)}

	a := NewStoreAuth(store)
	a.Setup(env)
	require.NoError(t, a.AfterAuthReady(ctx))

	blob, err := store.Restore(ctx, "primary")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"cred":"abc"}`), blob)
}

func TestStoreAuthLogoutClears(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemory()
	require.NoError(t, store.Save(ctx, "primary", []byte("blob")))
	env := &testEnv{id: "primary"}

	a := NewStoreAuth(store)
	a.Setup(env)
	require.NoError(t, a.BeforeBrowserInitialized(ctx))
	require.NoError(t, a.Logout(ctx))

	require.False(t, a.HasRestoredSession())
	_, err := store.Restore(ctx, "primary")
	require.ErrorIs(t, err, session.ErrNotFound)
}
