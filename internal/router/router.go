package router

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"memcore/internal/convstore"
	"memcore/internal/webhook"
)

// ContentBridge reaches the content-script side of a tab (
// content-side commands). A nil bridge or one that returns false for
// Active means there is no receiving tab.
type ContentBridge interface {
	Active() bool
	RunNow() error
	ExportCurrent(format string) (string, error)
	SaveCurrent(autosave bool) error
	CopyCurrent(format string) (string, error)
	InvokeScriptAction(scriptID, action string, payload any) (any, error)
}

// Router is the command surface that dispatches typed peer requests to
// the conversation store, webhook dispatcher, and settings document.
type Router struct {
	mu          sync.Mutex
	settings    Settings
	stats       Stats
	convs       *convstore.Store
	jobs        *webhook.Dispatcher
	jobsStore   *webhook.Store
	bridge      ContentBridge
	hostAllowed webhook.HostPermissionChecker
	now         func() time.Time
}

// New constructs a Router. bridge may be nil until a content script
// connects.
func New(convs *convstore.Store, jobs *webhook.Dispatcher, jobsStore *webhook.Store, hostAllowed webhook.HostPermissionChecker, bridge ContentBridge) *Router {
	return &Router{
		settings:    DefaultSettings(),
		convs:       convs,
		jobs:        jobs,
		jobsStore:   jobsStore,
		bridge:      bridge,
		hostAllowed: hostAllowed,
		now:         time.Now,
	}
}

// SetBridge attaches (or detaches, with nil) the content-side bridge.
func (r *Router) SetBridge(b ContentBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = b
}

// LoadSettings merges a persisted document onto the defaults.
func (r *Router) LoadSettings(loaded Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = MergeDefaults(loaded, DefaultSettings())
}

// GetSettings implements `get_settings`.
func (r *Router) GetSettings() (Settings, Stats) {
	r.mu.Lock()
	s := r.settings
	r.mu.Unlock()
	return s, r.stats.snapshot()
}

// ResetSettings implements `reset_settings`.
func (r *Router) ResetSettings() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = DefaultSettings()
}

// SetTheme implements `set_theme`.
func (r *Router) SetTheme(theme string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.UI.Theme = theme
}

// SetDefaultExportFormat implements `set_default_export_format`.
func (r *Router) SetDefaultExportFormat(format string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.UI.DefaultExportFormat = format
}

// ToggleGlobal implements `toggle_global`.
func (r *Router) ToggleGlobal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	enabled := r.settings.GlobalEnabled == nil || *r.settings.GlobalEnabled
	next := !enabled
	r.settings.GlobalEnabled = &next
	return next
}

// SetScriptEnabled implements `set_script_enabled`.
func (r *Router) SetScriptEnabled(scriptID string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.Enabled == nil {
		r.settings.Enabled = map[string]bool{}
	}
	r.settings.Enabled[scriptID] = enabled
}

// GetEnabledForURL implements `get_enabled_for_url`.
func (r *Router) GetEnabledForURL(rawURL string) ([]string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, newErr(KindInvalidURL)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return EnabledScriptsForURL(r.settings, rawURL), nil
}

// DownloadText implements `download_text`; it only bumps the exports stat.
// The filename, text and mime arguments are not used here; presenting a
// save dialog is left to the caller.
func (r *Router) DownloadText(filename, text, mime string) {
	r.stats.bump(StatExports)
	_ = filename
	_ = text
	_ = mime
}

// SaveConversation implements `save_conversation`.
func (r *Router) SaveConversation(in convstore.SaveInput) *convstore.Conversation {
	c := r.convs.Save(in)
	r.stats.bump(StatSaves)
	return c
}

// ListConversations implements `list_conversations`.
func (r *Router) ListConversations(q convstore.Query) []*convstore.Conversation {
	return r.convs.Search(q)
}

// GetConversationByID implements `get_conversation_by_id`.
func (r *Router) GetConversationByID(id string) (*convstore.Conversation, bool) {
	return r.convs.Get(id)
}

// GetConversationIDForURL implements `get_conversation_id_for_url`.
func (r *Router) GetConversationIDForURL(rawURL string) (string, bool) {
	return r.convs.GetIDForURL(rawURL)
}

// DeleteConversation implements `delete_conversation`.
func (r *Router) DeleteConversation(id string) bool {
	return r.convs.Delete(id)
}

// UpdateConversationMeta implements `update_conversation_meta`.
func (r *Router) UpdateConversationMeta(id string, patch convstore.MetaPatch) (*convstore.Conversation, bool) {
	return r.convs.UpdateMeta(id, patch)
}

// GetGlobalNotes implements `get_global_notes`.
func (r *Router) GetGlobalNotes() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	opts := r.settings.ScriptOptions["__global__"]
	if opts == nil {
		return ""
	}
	notes, _ := opts["notes"].(string)
	return notes
}

// SetGlobalNotes implements `set_global_notes`.
func (r *Router) SetGlobalNotes(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings.ScriptOptions == nil {
		r.settings.ScriptOptions = map[string]map[string]any{}
	}
	if r.settings.ScriptOptions["__global__"] == nil {
		r.settings.ScriptOptions["__global__"] = map[string]any{}
	}
	r.settings.ScriptOptions["__global__"]["notes"] = text
}

// GetConnectors implements `get_connectors`.
func (r *Router) GetConnectors() ConnectorsDoc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.Connectors
}

// SetConnectors implements `set_connectors`.
func (r *Router) SetConnectors(doc ConnectorsDoc) error {
	for _, c := range doc.ByID {
		if c.URL == "" {
			continue
		}
		if _, err := url.ParseRequestURI(c.URL); err != nil {
			return newErr(KindInvalidURL)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.Connectors = doc
	return nil
}

// ConnectorSend implements `connector_send`: validate the connector, check
// host permission for its origin, then enqueue a webhook job.
func (r *Router) ConnectorSend(connectorID string, payload any, headers map[string]string, kind string) (*webhook.Job, error) {
	r.mu.Lock()
	conn, ok := r.settings.Connectors.ByID[connectorID]
	r.mu.Unlock()

	if !ok {
		return nil, newErr(KindUnknownConnector)
	}
	if !conn.Enabled {
		return nil, newErr(KindConnectorDisabled)
	}
	if conn.URL == "" {
		return nil, newErr(KindNoConnector)
	}

	origin, err := url.Parse(conn.URL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, newErr(KindInvalidURL)
	}
	pattern := origin.Scheme + "://" + origin.Host + "/*"
	if r.hostAllowed != nil && !r.hostAllowed(pattern) {
		return nil, missingHostPermission(origin.Scheme + "://" + origin.Host)
	}

	job := r.jobs.Enqueue(webhook.EnqueueInput{
		ConnectorID: connectorID,
		Payload:     payload,
		Headers:     headers,
		Kind:        kind,
	})
	return job, nil
}

// ListJobs implements `list_jobs`.
func (r *Router) ListJobs() []*webhook.Job {
	return r.jobsStore.All()
}

// content-side commands delegate to the attached ContentBridge.

func (r *Router) contentBridge() (ContentBridge, error) {
	r.mu.Lock()
	b := r.bridge
	r.mu.Unlock()
	if b == nil || !b.Active() {
		return nil, newErr(KindNoActiveTab)
	}
	return b, nil
}

// RunNow implements `run_now`.
func (r *Router) RunNow() error {
	b, err := r.contentBridge()
	if err != nil {
		return err
	}
	return b.RunNow()
}

// ExportCurrent implements `export_current`.
func (r *Router) ExportCurrent(format string) (string, error) {
	b, err := r.contentBridge()
	if err != nil {
		return "", err
	}
	out, err := b.ExportCurrent(format)
	if err == nil {
		r.stats.bump(StatExports)
	}
	return out, err
}

// SaveCurrent implements `save_current`.
func (r *Router) SaveCurrent(autosave bool) error {
	b, err := r.contentBridge()
	if err != nil {
		return err
	}
	if err := b.SaveCurrent(autosave); err != nil {
		return err
	}
	r.stats.bump(StatSaves)
	return nil
}

// CopyCurrent implements `copy_current`.
func (r *Router) CopyCurrent(format string) (string, error) {
	b, err := r.contentBridge()
	if err != nil {
		return "", err
	}
	return b.CopyCurrent(format)
}

// InvokeScriptAction implements `invoke_script_action`.
func (r *Router) InvokeScriptAction(scriptID, action string, payload any) (any, error) {
	r.mu.Lock()
	enabled := r.settings.Enabled[scriptID]
	r.mu.Unlock()
	if !enabled {
		return nil, newErr(KindScriptNotEnabled)
	}
	b, err := r.contentBridge()
	if err != nil {
		return nil, err
	}
	return b.InvokeScriptAction(scriptID, action, payload)
}

// envelope is the `{type, ...}` shape every request carries.
type envelope struct {
	Type string `json:"type"`
}

// Dispatch decodes a raw JSON command and routes it to the matching
// handler, returning `{ok:false, error:<kind>}` semantics via RouterError
// on failure.
func (r *Router) Dispatch(body []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newErr(KindInvalidJSON)
	}

	switch env.Type {
	case "get_settings":
		settings, stats := r.GetSettings()
		return map[string]any{"settings": settings, "stats": stats}, nil
	case "reset_settings":
		r.ResetSettings()
		return nil, nil
	case "toggle_global":
		return map[string]any{"globalEnabled": r.ToggleGlobal()}, nil
	case "set_theme":
		var p struct {
			Theme string `json:"theme"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		r.SetTheme(p.Theme)
		return nil, nil
	case "set_default_export_format":
		var p struct {
			Format string `json:"format"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		r.SetDefaultExportFormat(p.Format)
		return nil, nil
	case "set_script_enabled":
		var p struct {
			ScriptID string `json:"scriptId"`
			Enabled  bool   `json:"enabled"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		r.SetScriptEnabled(p.ScriptID, p.Enabled)
		return nil, nil
	case "get_enabled_for_url":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		ids, err := r.GetEnabledForURL(p.URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"enabledScripts": ids}, nil
	case "list_jobs":
		return map[string]any{"jobs": r.ListJobs()}, nil
	case "download_text":
		var p struct {
			Filename string `json:"filename"`
			Text     string `json:"text"`
			Mime     string `json:"mime"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		r.DownloadText(p.Filename, p.Text, p.Mime)
		return nil, nil
	case "save_conversation":
		var p struct {
			Conversation convstore.SaveInput `json:"conversation"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		return r.SaveConversation(p.Conversation), nil
	case "list_conversations":
		var p struct {
			Query   string            `json:"query"`
			Limit   int               `json:"limit"`
			Filters convstore.Filters `json:"filters"`
			Sort    string            `json:"sort"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		items := r.ListConversations(convstore.Query{Query: p.Query, Limit: p.Limit, Filters: p.Filters, Sort: p.Sort})
		return map[string]any{"items": items}, nil
	case "get_conversation_by_id":
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		c, _ := r.GetConversationByID(p.ID)
		return c, nil
	case "get_conversation_id_for_url":
		var p struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		id, _ := r.GetConversationIDForURL(p.URL)
		return map[string]any{"id": id}, nil
	case "delete_conversation":
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		return map[string]any{"deleted": r.DeleteConversation(p.ID)}, nil
	case "update_conversation_meta":
		var p struct {
			ID    string              `json:"id"`
			Patch convstore.MetaPatch `json:"patch"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		c, _ := r.UpdateConversationMeta(p.ID, p.Patch)
		return c, nil
	case "get_global_notes":
		return map[string]any{"notes": r.GetGlobalNotes()}, nil
	case "set_global_notes":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		r.SetGlobalNotes(p.Text)
		return nil, nil
	case "get_connectors":
		return r.GetConnectors(), nil
	case "set_connectors":
		var p struct {
			Connectors ConnectorsDoc `json:"connectors"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		if err := r.SetConnectors(p.Connectors); err != nil {
			return nil, err
		}
		return nil, nil
	case "connector_send":
		var p struct {
			ConnectorID string            `json:"connectorId"`
			Payload     any               `json:"payload"`
			Headers     map[string]string `json:"headers"`
			Kind        string            `json:"kind"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		job, err := r.ConnectorSend(p.ConnectorID, p.Payload, p.Headers, p.Kind)
		if err != nil {
			return nil, err
		}
		return job, nil
	case "run_now":
		if err := r.RunNow(); err != nil {
			return nil, err
		}
		return nil, nil
	case "export_current":
		var p struct {
			Format string `json:"format"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		out, err := r.ExportCurrent(p.Format)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": out}, nil
	case "save_current":
		var p struct {
			Autosave bool `json:"autosave"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		if err := r.SaveCurrent(p.Autosave); err != nil {
			return nil, err
		}
		return nil, nil
	case "copy_current":
		var p struct {
			Format string `json:"format"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		out, err := r.CopyCurrent(p.Format)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": out}, nil
	case "invoke_script_action":
		var p struct {
			ScriptID string `json:"scriptId"`
			Action   string `json:"action"`
			Payload  any    `json:"payload"`
		}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, newErr(KindInvalidJSON)
		}
		out, err := r.InvokeScriptAction(p.ScriptID, p.Action, p.Payload)
		if err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, newErr(KindUnknownAction)
	}
}
