package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memcore/internal/convstore"
	"memcore/internal/extractor"
	"memcore/internal/graph"
	"memcore/internal/router"
)

type fakeReader struct {
	mu       sync.Mutex
	messages []DOMMessage
	title    string
}

func (f *fakeReader) ReadMessages() ([]DOMMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DOMMessage, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeReader) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *fakeReader) setMessages(title string, msgs ...DOMMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	f.messages = msgs
}

type fakeLoader struct {
	mu      sync.Mutex
	loaded  []string
	failing map[string]bool
}

func (f *fakeLoader) Load(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, id)
	if f.failing[id] {
		return assertionErr{"boom"}
	}
	return nil
}

type assertionErr struct{ msg string }

func (e assertionErr) Error() string { return e.msg }

func testSettings() router.Settings {
	s := router.DefaultSettings()
	s.Registry = []router.RegistryEntry{
		{ID: "django-helper", Matches: []string{"https://chatgpt.com/*"}},
	}
	s.Enabled = map[string]bool{"django-helper": true}
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true within %s", timeout)
}

func TestRouteChangeDebouncesAndLoadsEnabledScripts(t *testing.T) {
	g := graph.New()
	loader := &fakeLoader{}
	r := New(Config{
		Graph:         g,
		Settings:      testSettings,
		Scripts:       loader,
		Platform:      "chatgpt",
		RouteDebounce: 20 * time.Millisecond,
	})

	r.OnRouteChange("https://chatgpt.com/c/abc")
	r.OnRouteChange("https://chatgpt.com/c/abc") // rapid re-trigger must not double-fire early

	waitUntil(t, time.Second, func() bool { return len(r.ActiveScripts()) > 0 })
	require.Equal(t, []string{"django-helper"}, r.ActiveScripts())

	_, ok := g.ActiveSession()
	require.True(t, ok, "a route change must start a session")
}

func TestScriptLoadFailureIsSwallowed(t *testing.T) {
	g := graph.New()
	loader := &fakeLoader{failing: map[string]bool{"django-helper": true}}
	r := New(Config{
		Graph:         g,
		Settings:      testSettings,
		Scripts:       loader,
		RouteDebounce: 10 * time.Millisecond,
	})

	r.OnRouteChange("https://chatgpt.com/c/abc")
	waitUntil(t, time.Second, func() bool { return len(loader.loaded) > 0 })
	// no panic, no propagated error: best-effort per the design
}

func TestConversationObservedSavesAndExtracts(t *testing.T) {
	g := graph.New()
	convs := convstore.New(0, 0)
	reader := &fakeReader{}
	reader.setMessages("My chat",
		DOMMessage{Role: "user", Text: "I'm using Python with Django to build a REST API. Got a TypeError."},
		DOMMessage{Role: "assistant", Text: "Let's debug that."},
	)

	r := New(Config{
		Graph:                g,
		Extractor:            extractor.New(),
		Conversations:        convs,
		Reader:                reader,
		ConversationDebounce: 10 * time.Millisecond,
	})

	r.OnConversationObserved("https://chatgpt.com/c/abc")

	waitUntil(t, time.Second, func() bool { return convs.Len() > 0 })

	all := convs.All()
	require.Len(t, all, 1)
	require.Equal(t, "c_abc", all[0].ID)
	require.Contains(t, all[0].Text, "TypeError")

	require.Greater(t, g.NodeCount(), 0, "conversation text must feed the extractor")
}

func TestRunNowBypassesDebounce(t *testing.T) {
	convs := convstore.New(0, 0)
	reader := &fakeReader{}
	reader.setMessages("t", DOMMessage{Role: "user", Text: "hello there, this is a long enough message"})

	r := New(Config{
		Conversations:        convs,
		Reader:                reader,
		ConversationDebounce: time.Hour, // would never fire on its own within the test
	})
	r.OnRouteChange("https://example.com/chat")

	require.NoError(t, r.RunNow())
	require.Equal(t, 1, convs.Len())
}

func TestExportCurrentWithoutPriorCaptureReturnsNoActiveTab(t *testing.T) {
	r := New(Config{})
	_, err := r.ExportCurrent("markdown")
	require.Error(t, err)
	var rerr *router.RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, router.KindNoActiveTab, rerr.Kind)
}

func TestInvokeScriptActionReturnsScriptNotEnabledOrNoHandler(t *testing.T) {
	g := graph.New()
	r := New(Config{Graph: g, Settings: testSettings, RouteDebounce: 5 * time.Millisecond})

	_, err := r.InvokeScriptAction("django-helper", "doThing", nil)
	var rerr *router.RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, router.KindScriptNotEnabled, rerr.Kind, "not yet loaded for any route")

	r.OnRouteChange("https://chatgpt.com/c/abc")
	waitUntil(t, time.Second, func() bool { return len(r.ActiveScripts()) > 0 })

	_, err = r.InvokeScriptAction("django-helper", "doThing", nil)
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, router.KindNoActionHandler, rerr.Kind, "runner has no script-action handlers of its own")
}
