package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-hub/internal/browser"
	"github.com/dhruvsoni1802/browser-hub/internal/cdp"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/engine/enginetest"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

const testScript = "/* stealth */"

// debugEndpoint answers /json/version like a chrome started with --remote-debugging-port
func debugEndpoint(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cdp.VersionInfo{
			Browser:              "Chrome/120.0.6099.109",
			WebSocketDebuggerURL: "ws://127.0.0.1/devtools/browser/1",
		})
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]cdp.Target{
			{ID: "A1", Type: "page", URL: "https://mail.example.com"},
			{ID: "B2", Type: "service_worker", URL: "https://mail.example.com/sw.js"},
			{ID: "C3", Type: "page", URL: "https://calendar.example.com"},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

// deadEndpoint is an address nothing listens on
func deadEndpoint(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

// remoteChrome is a CDP-attached browser with one window holding the given tabs
func remoteChrome(urls ...string) *enginetest.Browser {
	remote := enginetest.NewBrowser("remote")
	window := enginetest.NewContext(nil)
	for _, url := range urls {
		window.AddPage(enginetest.NewPage(url))
	}
	remote.AddContext(window)
	return remote
}

func setupBridge(t *testing.T, endpoint string) (*Bridge, *enginetest.Engine, *session.Manager) {
	t.Helper()

	root := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(root, "sessions"))
	require.NoError(t, err)

	eng := enginetest.New()
	registry := session.NewManager(browser.NewPool(eng, ""), store, testScript, engine.ContextOptions{})
	t.Cleanup(registry.CloseAll)

	b := New(eng, registry, Config{
		Endpoint:    endpoint,
		Timeout:     time.Second,
		ProfilesDir: filepath.Join(root, "profiles"),
	}, testScript, engine.ContextOptions{})
	t.Cleanup(func() { b.Close() })
	return b, eng, registry
}

func TestConnectChromeEnumeratesTabs(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))
	eng.CDP = remoteChrome("https://mail.example.com", "https://docs.example.com")

	result, err := b.ConnectChrome(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, "Chrome/120.0.6099.109", result.Browser)
	require.Len(t, result.Tabs, 2)
	assert.Equal(t, "https://docs.example.com", result.Tabs[1].URL)
	assert.Equal(t, 1, result.Tabs[1].Index)
	assert.Equal(t, SourceCDP, result.Tabs[0].Source)

	// /json sees every window's page targets, workers excluded
	require.Len(t, result.Targets, 2)
	assert.Equal(t, "A1", result.Targets[0].ID)
	assert.Equal(t, "https://calendar.example.com", result.Targets[1].URL)

	again, err := b.ConnectChrome(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Len(t, again.Targets, 2)
	assert.Equal(t, 1, eng.ConnectAttempts())
	assert.True(t, b.Status().CDPConnected)
}

func TestConnectChromeRefusedIsAttachFailure(t *testing.T) {
	b, eng, _ := setupBridge(t, deadEndpoint(t))

	_, err := b.ConnectChrome(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.AttachFailure))
	assert.Contains(t, failure.GuidanceOf(err), "--remote-debugging-port")
	assert.Equal(t, 0, eng.ConnectAttempts(), "probe failure should stop before connecting")
	assert.False(t, b.Status().CDPConnected)
}

func TestConnectChromeEngineRefusal(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))

	// the port answers but the engine cannot attach
	_, err := b.ConnectChrome(context.Background())
	assert.True(t, failure.Is(err, failure.AttachFailure))
	assert.Equal(t, 1, eng.ConnectAttempts())
}

func TestLaunchRealChromeIsIdempotent(t *testing.T) {
	b, eng, _ := setupBridge(t, deadEndpoint(t))

	dir := b.ProfileDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SingletonSocket"), nil, 0o644))

	first, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Reused)
	require.Len(t, first.Tabs, 1, "a page is opened when the profile starts empty")

	_, err = os.Lstat(filepath.Join(dir, "SingletonSocket"))
	assert.True(t, os.IsNotExist(err))

	second, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Len(t, eng.Persistent(), 1)

	opts := eng.PersistentOptions(0)
	assert.False(t, opts.Headless)
	assert.Equal(t, []string{testScript}, eng.Persistent()[0].InitScripts())
	assert.True(t, b.Status().ProfileRunning)
}

func TestLaunchRealChromeRelaunchesAfterClose(t *testing.T) {
	b, eng, _ := setupBridge(t, deadEndpoint(t))

	_, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)

	// the user closed the window
	eng.Persistent()[0].Close()

	result, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Len(t, eng.Persistent(), 2)
}

func TestTabsPrefersCDP(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))
	assert.Empty(t, b.Tabs(context.Background()))

	_, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)
	tabs := b.Tabs(context.Background())
	require.Len(t, tabs, 1)
	assert.Equal(t, SourceProfile, tabs[0].Source)

	eng.CDP = remoteChrome("https://mail.example.com")
	_, err = b.ConnectChrome(context.Background())
	require.NoError(t, err)

	tabs = b.Tabs(context.Background())
	require.Len(t, tabs, 1)
	assert.Equal(t, SourceCDP, tabs[0].Source)
	assert.Equal(t, "https://mail.example.com", tabs[0].URL)
}

func TestSharedPagePrefersMatchingCDPTab(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))
	eng.CDP = remoteChrome("https://docs.example.com", "https://mail.example.com")

	_, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)

	// auto-attaches on first use
	page, err := b.SharedPage(context.Background(), Request{URLPattern: "mail"})
	require.NoError(t, err)
	assert.Equal(t, "https://mail.example.com", page.URL())

	page, err = b.SharedPage(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com", page.URL())
}

func TestSharedPageOpensTabWhenNothingMatches(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))
	eng.CDP = remoteChrome("https://docs.example.com")

	page, err := b.SharedPage(context.Background(), Request{URLPattern: "calendar"})
	require.NoError(t, err)
	assert.Equal(t, "about:blank", page.URL())
	assert.Len(t, b.Tabs(context.Background()), 2)
}

func TestSharedPageFallsBackToProfile(t *testing.T) {
	b, eng, registry := setupBridge(t, deadEndpoint(t))

	_, err := b.LaunchRealChrome(context.Background())
	require.NoError(t, err)

	page, err := b.SharedPage(context.Background(), Request{URLPattern: "mail"})
	require.NoError(t, err)
	assert.Same(t, eng.Persistent()[0].Pages()[0], page)
	assert.Equal(t, 0, registry.Count())
}

func TestSharedPageFallsBackToRegistry(t *testing.T) {
	b, eng, registry := setupBridge(t, deadEndpoint(t))

	page, err := b.SharedPage(context.Background(), Request{Session: "demo", Headless: true})
	require.NoError(t, err)
	require.NotNil(t, page)

	infos := registry.List()
	require.Len(t, infos, 1)
	assert.Equal(t, SharedContextID, infos[0].ContextID)
	assert.Equal(t, "demo", infos[0].Session)
	assert.Equal(t, 1, eng.Launches(engine.Headless))

	again, err := b.SharedPage(context.Background(), Request{Session: "demo", Headless: true})
	require.NoError(t, err)
	assert.Same(t, page, again)
}

func TestCloseTearsDownBothModes(t *testing.T) {
	b, eng, _ := setupBridge(t, debugEndpoint(t))
	remote := remoteChrome("https://mail.example.com")
	eng.CDP = remote

	_, err := b.ConnectChrome(context.Background())
	require.NoError(t, err)
	_, err = b.LaunchRealChrome(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.True(t, remote.Closed())
	assert.True(t, eng.Persistent()[0].IsClosed())

	status := b.Status()
	assert.False(t, status.CDPConnected)
	assert.False(t, status.ProfileRunning)

	// the profile lock was released, so a relaunch works
	_, err = b.LaunchRealChrome(context.Background())
	assert.NoError(t, err)
}
