// Package router implements the command surface that peers (popup, options
// UI, context menu, keyboard shortcut) use to reach the rest of the core
//.
package router

import (
	"strings"

	"memcore/internal/webhook"
)

// RegistryEntry describes one loadable script.
type RegistryEntry struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Icon           string         `json:"icon"`
	Matches        []string       `json:"matches"`
	RunAt          string         `json:"runAt"`
	Permissions    []string       `json:"permissions"`
	Entry          string         `json:"entry"`
	DefaultEnabled bool           `json:"defaultEnabled"`
	DefaultOptions map[string]any `json:"defaultOptions,omitempty"`
}

// UISettings holds the user-facing display preferences.
type UISettings struct {
	Theme               string `json:"theme"`
	DefaultExportFormat string `json:"defaultExportFormat"`
}

// ConnectorsDoc is the `{byId, order}` connector document.
type ConnectorsDoc struct {
	ByID  map[string]webhook.Connector `json:"byId"`
	Order []string                     `json:"order"`
}

// Settings is the single persisted settings document.
type Settings struct {
	Version       int                        `json:"version"`
	GlobalEnabled *bool                      `json:"globalEnabled"`
	Registry      []RegistryEntry            `json:"registry"`
	Enabled       map[string]bool            `json:"enabled"`
	Approvals     map[string]map[string]bool `json:"approvals"`
	ScriptOptions map[string]map[string]any  `json:"scriptOptions"`
	Connectors    ConnectorsDoc              `json:"connectors"`
	UI            UISettings                 `json:"ui"`
}

const currentSettingsVersion = 1

// DefaultSettings returns the baseline document shipped with the core;
// callers typically merge a persisted document onto this with MergeDefaults.
func DefaultSettings() Settings {
	enabledTrue := true
	return Settings{
		Version:       currentSettingsVersion,
		GlobalEnabled: &enabledTrue,
		Registry:      nil,
		Enabled:       map[string]bool{},
		Approvals:     map[string]map[string]bool{},
		ScriptOptions: map[string]map[string]any{},
		Connectors:    ConnectorsDoc{ByID: map[string]webhook.Connector{}, Order: []string{}},
		UI:            UISettings{Theme: "system", DefaultExportFormat: "markdown"},
	}
}

// MergeDefaults implements the load-time merge: union registry by
// id; union enabled/approvals/scriptOptions/ui; preserve existing
// connectors; preserve an explicit globalEnabled=false.
func MergeDefaults(loaded, defaults Settings) Settings {
	out := defaults

	out.Registry = mergeRegistry(defaults.Registry, loaded.Registry)

	out.Enabled = mergeBoolMap(defaults.Enabled, loaded.Enabled)
	out.Approvals = mergeApprovals(defaults.Approvals, loaded.Approvals)
	out.ScriptOptions = mergeOptions(defaults.ScriptOptions, loaded.ScriptOptions)

	if loaded.UI.Theme != "" {
		out.UI.Theme = loaded.UI.Theme
	}
	if loaded.UI.DefaultExportFormat != "" {
		out.UI.DefaultExportFormat = loaded.UI.DefaultExportFormat
	}

	if loaded.Connectors.ByID != nil || len(loaded.Connectors.Order) > 0 {
		out.Connectors = loaded.Connectors
	}

	if loaded.GlobalEnabled != nil && !*loaded.GlobalEnabled {
		f := false
		out.GlobalEnabled = &f
	}

	return out
}

func mergeRegistry(defaults, loaded []RegistryEntry) []RegistryEntry {
	byID := make(map[string]RegistryEntry, len(defaults)+len(loaded))
	order := make([]string, 0, len(defaults)+len(loaded))
	for _, e := range defaults {
		if _, ok := byID[e.ID]; !ok {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}
	for _, e := range loaded {
		if _, ok := byID[e.ID]; !ok {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}
	out := make([]RegistryEntry, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func mergeBoolMap(defaults, loaded map[string]bool) map[string]bool {
	out := make(map[string]bool, len(defaults)+len(loaded))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range loaded {
		out[k] = v
	}
	return out
}

func mergeApprovals(defaults, loaded map[string]map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(defaults)+len(loaded))
	for id, perms := range defaults {
		out[id] = mergeBoolMap(perms, nil)
	}
	for id, perms := range loaded {
		out[id] = mergeBoolMap(out[id], perms)
	}
	return out
}

func mergeOptions(defaults, loaded map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(defaults)+len(loaded))
	for id, opts := range defaults {
		merged := make(map[string]any, len(opts))
		for k, v := range opts {
			merged[k] = v
		}
		out[id] = merged
	}
	for id, opts := range loaded {
		merged := out[id]
		if merged == nil {
			merged = make(map[string]any, len(opts))
		}
		for k, v := range opts {
			merged[k] = v
		}
		out[id] = merged
	}
	return out
}

// EnabledForURL implements: globalEnabled≠false, enabled[id]=true,
// and the URL matches at least one of the entry's patterns.
func EnabledForURL(s Settings, entry RegistryEntry, url string) bool {
	if s.GlobalEnabled != nil && !*s.GlobalEnabled {
		return false
	}
	if !s.Enabled[entry.ID] {
		return false
	}
	for _, pattern := range entry.Matches {
		if matchesPattern(url, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern supports an exact match or a `<prefix>/*` glob.
func matchesPattern(url, pattern string) bool {
	if pattern == url {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return url == prefix || strings.HasPrefix(url, prefix+"/")
	}
	return false
}

// EnabledScriptsForURL returns the ids of every registry entry enabled for
// the given URL ( get_enabled_for_url).
func EnabledScriptsForURL(s Settings, url string) []string {
	var out []string
	for _, entry := range s.Registry {
		if EnabledForURL(s, entry, url) {
			out = append(out, entry.ID)
		}
	}
	return out
}
