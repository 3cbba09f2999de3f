package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memcore/internal/convstore"
	"memcore/internal/webhook"
)

type stubBridge struct {
	active bool
	runErr error
}

func (b *stubBridge) Active() bool { return b.active }
func (b *stubBridge) RunNow() error { return b.runErr }
func (b *stubBridge) ExportCurrent(format string) (string, error) { return "exported:" + format, nil }
func (b *stubBridge) SaveCurrent(autosave bool) error              { return nil }
func (b *stubBridge) CopyCurrent(format string) (string, error)   { return "copied:" + format, nil }
func (b *stubBridge) InvokeScriptAction(scriptID, action string, payload any) (any, error) {
	return map[string]any{"scriptId": scriptID, "action": action}, nil
}

func newTestRouter(t *testing.T, allow webhook.HostPermissionChecker) (*Router, *webhook.Store) {
	t.Helper()
	convs := convstore.New(0, 0)
	jobsStore := webhook.NewStore()
	connectors := map[string]webhook.Connector{}
	dispatcher := webhook.NewDispatcher(jobsStore, func(id string) (webhook.Connector, bool) {
		c, ok := connectors[id]
		return c, ok
	}, allow, 0, 0, 0, 0)
	r := New(convs, dispatcher, jobsStore, allow, nil)
	return r, jobsStore
}

func TestNoActiveTabWhenBridgeUnset(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	err := r.RunNow()
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindNoActiveTab, rerr.Kind)
}

func TestRunNowDelegatesToBridge(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	r.SetBridge(&stubBridge{active: true})
	require.NoError(t, r.RunNow())
}

func TestInvokeScriptActionRequiresEnabled(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	r.SetBridge(&stubBridge{active: true})

	_, err := r.InvokeScriptAction("script1", "doThing", nil)
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindScriptNotEnabled, rerr.Kind)

	r.SetScriptEnabled("script1", true)
	out, err := r.InvokeScriptAction("script1", "doThing", nil)
	require.NoError(t, err)
	require.Equal(t, "script1", out.(map[string]any)["scriptId"])
}

func TestSaveConversationBumpsStats(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	r.SaveConversation(convstore.SaveInput{ID: "tmp_a", Title: "a", Text: "x"})
	_, stats := r.GetSettings()
	require.Equal(t, 1, stats.Saves)
}

func TestDispatchUnknownTypeReturnsUnknownAction(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	_, err := r.Dispatch([]byte(`{"type":"not_a_real_command"}`))
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindUnknownAction, rerr.Kind)
}

func TestDispatchInvalidJSONReturnsInvalidJSON(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	_, err := r.Dispatch([]byte(`{not json`))
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindInvalidJSON, rerr.Kind)
}

func TestConnectorSendUnknownConnector(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	_, err := r.ConnectorSend("nope", map[string]int{"a": 1}, nil, "")
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindUnknownConnector, rerr.Kind)
}

func TestConnectorSendDisabledConnector(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return true })
	require.NoError(t, r.SetConnectors(ConnectorsDoc{
		ByID:  map[string]webhook.Connector{"c1": {ID: "c1", URL: "https://example.com/hook", Enabled: false}},
		Order: []string{"c1"},
	}))
	_, err := r.ConnectorSend("c1", nil, nil, "")
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindConnectorDisabled, rerr.Kind)
}

func TestConnectorSendMissingHostPermission(t *testing.T) {
	r, _ := newTestRouter(t, func(string) bool { return false })
	require.NoError(t, r.SetConnectors(ConnectorsDoc{
		ByID:  map[string]webhook.Connector{"c1": {ID: "c1", URL: "https://example.com/hook", Enabled: true}},
		Order: []string{"c1"},
	}))
	_, err := r.ConnectorSend("c1", nil, nil, "")
	require.Error(t, err)
	var rerr *RouterError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindMissingHostPermission, rerr.Kind)
	require.Equal(t, "https://example.com", rerr.Origin)
}

// TestConnectorSendEnqueuesAndPumpsToDone checks the same enqueue-then-
// deliver path as the dispatcher tests, but exercised through the
// router's command surface rather than the dispatcher directly.
func TestConnectorSendEnqueuesAndPumpsToDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	convs := convstore.New(0, 0)
	jobsStore := webhook.NewStore()
	connectors := map[string]webhook.Connector{
		"c1": {ID: "c1", URL: srv.URL, Secret: "s", Enabled: true},
	}
	dispatcher := webhook.NewDispatcher(jobsStore, func(id string) (webhook.Connector, bool) {
		c, ok := connectors[id]
		return c, ok
	}, func(string) bool { return true }, 5*time.Second, 5, 10*time.Minute, 3)

	r := New(convs, dispatcher, jobsStore, func(string) bool { return true }, nil)
	require.NoError(t, r.SetConnectors(ConnectorsDoc{ByID: connectors, Order: []string{"c1"}}))

	job, err := r.ConnectorSend("c1", map[string]int{"a": 1}, nil, "")
	require.NoError(t, err)
	require.Equal(t, webhook.StatusQueued, job.Status)

	dispatcher.Pump(context.Background())

	got, _ := jobsStore.Get(job.ID)
	require.Equal(t, webhook.StatusDone, got.Status)
}
