package runner

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"memcore/internal/convstore"
	"memcore/internal/extractor"
	"memcore/internal/graph"
	"memcore/internal/logging"
	"memcore/internal/router"
)

const (
	// DefaultRouteDebounce is the route-change re-run delay.
	DefaultRouteDebounce = 250 * time.Millisecond
	// DefaultConversationDebounce is the conversation-observer autosave
	// delay.
	DefaultConversationDebounce = 1000 * time.Millisecond
)

// ScriptLoader best-effort loads a script module for a route; load/run
// failures are caught and silenced per the propagation policy.
type ScriptLoader interface {
	Load(scriptID string) error
}

// SettingsSource supplies the current settings document for enabled-script
// resolution, decoupling the runner from any one Router instance.
type SettingsSource func() router.Settings

// Runner drives one tab: route-change debouncing, script loading,
// conversation extraction, and session lifecycle.
type Runner struct {
	g          *graph.Graph
	extractor  *extractor.Extractor
	convs      *convstore.Store
	settings   SettingsSource
	scripts    ScriptLoader
	reader     DOMReader
	routeDebounce        time.Duration
	conversationDebounce time.Duration
	now        func() time.Time

	mu               sync.Mutex
	platform         string
	lastURL          string
	lastSessionURL   string
	activeScriptIDs  []string
	routeTimer       *time.Timer
	conversationTimer *time.Timer
	lastExtracted    *ExtractedConversation
	closed           bool
}

// Config bundles a Runner's collaborators.
type Config struct {
	Graph                *graph.Graph
	Extractor            *extractor.Extractor
	Conversations        *convstore.Store
	Settings             SettingsSource
	Scripts              ScriptLoader
	Reader               DOMReader
	Platform             string
	RouteDebounce        time.Duration
	ConversationDebounce time.Duration
}

// New constructs a Runner. Zero-valued debounce durations fall back to
// the package defaults.
func New(cfg Config) *Runner {
	routeDebounce := cfg.RouteDebounce
	if routeDebounce <= 0 {
		routeDebounce = DefaultRouteDebounce
	}
	convDebounce := cfg.ConversationDebounce
	if convDebounce <= 0 {
		convDebounce = DefaultConversationDebounce
	}
	return &Runner{
		g:                    cfg.Graph,
		extractor:            cfg.Extractor,
		convs:                cfg.Conversations,
		settings:             cfg.Settings,
		scripts:              cfg.Scripts,
		reader:               cfg.Reader,
		platform:             cfg.Platform,
		routeDebounce:        routeDebounce,
		conversationDebounce: convDebounce,
		now:                  time.Now,
	}
}

// OnRouteChange schedules a debounced re-evaluation of the active route:
// session start/end and enabled-script reload, 250ms debounce.
func (r *Runner) OnRouteChange(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastURL = url
	if r.routeTimer != nil {
		r.routeTimer.Stop()
	}
	r.routeTimer = time.AfterFunc(r.routeDebounce, func() { r.evaluateRoute(url) })
}

func (r *Runner) evaluateRoute(url string) {
	log := logging.For("runner")

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	changed := url != r.lastSessionURL
	platform := r.platform
	r.mu.Unlock()

	if changed && r.g != nil {
		r.g.StartSession(graph.SessionMeta{Platform: platform, URL: url})
		r.mu.Lock()
		r.lastSessionURL = url
		r.mu.Unlock()
	}

	ids := r.enabledScriptIDsLocked(url)
	r.mu.Lock()
	r.activeScriptIDs = ids
	r.mu.Unlock()

	if r.scripts != nil {
		for _, id := range ids {
			if err := r.scripts.Load(id); err != nil {
				log.Warn().Str("script_id", id).Err(err).Msg("script load failed, continuing")
			}
		}
	}
}

func (r *Runner) enabledScriptIDsLocked(url string) []string {
	if r.settings == nil {
		return nil
	}
	return router.EnabledScriptsForURL(r.settings(), url)
}

// ActiveScripts returns the script ids currently enabled for the last
// evaluated route.
func (r *Runner) ActiveScripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.activeScriptIDs))
	copy(out, r.activeScriptIDs)
	return out
}

// OnConversationObserved schedules a debounced autosave-and-extract pass,
// 1000ms debounce.
func (r *Runner) OnConversationObserved(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.conversationTimer != nil {
		r.conversationTimer.Stop()
	}
	r.conversationTimer = time.AfterFunc(r.conversationDebounce, func() { r.captureConversation(url, true) })
}

// captureConversation reads the DOM, autosaves (or manually saves) the
// conversation, and feeds its text to the extractor. Extractor/DOM errors
// are best-effort (swallowed); graph/storage errors propagate.
func (r *Runner) captureConversation(url string, autosave bool) (*ExtractedConversation, error) {
	log := logging.For("runner")
	if r.reader == nil {
		return nil, nil
	}

	extracted, err := ExtractConversation(r.reader, url, r.now())
	if err != nil {
		log.Debug().Err(err).Msg("conversation extraction skipped")
		return nil, nil
	}

	r.mu.Lock()
	r.lastExtracted = extracted
	r.mu.Unlock()

	if r.convs != nil {
		r.convs.Save(convstore.SaveInput{
			ID:       extracted.ID,
			Title:    extracted.Title,
			URL:      extracted.URL,
			TS:       extracted.TS,
			Messages: extracted.Messages,
			Text:     extracted.Text,
		})
	}

	if r.extractor != nil && r.g != nil {
		r.mu.Lock()
		platform := r.platform
		r.mu.Unlock()
		if _, err := r.extractor.Extract(r.g, extracted.Text, extractor.Options{Platform: platform, Source: "conversation"}); err != nil {
			log.Debug().Err(err).Msg("pattern extraction skipped")
		}
	}

	return extracted, nil
}

// Close stops pending debounce timers and ends the active session.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.routeTimer != nil {
		r.routeTimer.Stop()
	}
	if r.conversationTimer != nil {
		r.conversationTimer.Stop()
	}
	if r.g != nil {
		if s, ok := r.g.ActiveSession(); ok {
			r.g.EndSession(s.ID)
		}
	}
}

// Active implements router.ContentBridge: a Runner counts as the active
// tab from construction until Close.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// RunNow implements router.ContentBridge `run_now`: bypasses debouncing
// and captures immediately.
func (r *Runner) RunNow() error {
	r.mu.Lock()
	url := r.lastURL
	r.mu.Unlock()
	_, err := r.captureConversation(url, false)
	return err
}

// SaveCurrent implements router.ContentBridge `save_current`.
func (r *Runner) SaveCurrent(autosave bool) error {
	r.mu.Lock()
	url := r.lastURL
	r.mu.Unlock()
	_, err := r.captureConversation(url, autosave)
	return err
}

// ExportCurrent implements router.ContentBridge `export_current`: renders
// the last captured conversation in the requested format.
func (r *Runner) ExportCurrent(format string) (string, error) {
	r.mu.Lock()
	extracted := r.lastExtracted
	r.mu.Unlock()
	if extracted == nil {
		return "", &router.RouterError{Kind: router.KindNoActiveTab}
	}
	return renderConversation(extracted, format), nil
}

// CopyCurrent implements router.ContentBridge `copy_current`.
func (r *Runner) CopyCurrent(format string) (string, error) {
	return r.ExportCurrent(format)
}

// InvokeScriptAction implements router.ContentBridge `invoke_script_action`.
// Actual script-module action dispatch is out of scope (UI/script internals,
//  Non-goals); the runner only validates that the script is loaded
// for the current route.
func (r *Runner) InvokeScriptAction(scriptID, action string, payload any) (any, error) {
	found := false
	for _, id := range r.ActiveScripts() {
		if id == scriptID {
			found = true
			break
		}
	}
	if !found {
		return nil, &router.RouterError{Kind: router.KindScriptNotEnabled}
	}
	return nil, &router.RouterError{Kind: router.KindNoActionHandler}
}

func renderConversation(c *ExtractedConversation, format string) string {
	switch strings.ToLower(format) {
	case "json":
		return fmt.Sprintf(`{"id":%q,"title":%q,"url":%q,"text":%q}`, c.ID, c.Title, c.URL, c.Text)
	default: // markdown
		var sb strings.Builder
		sb.WriteString("# " + c.Title + "\n\n")
		for _, m := range c.Messages {
			sb.WriteString("**" + m.Role + "**: " + m.Text + "\n\n")
		}
		return sb.String()
	}
}
