package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"memcore/internal/webhook"
)

func TestMergeDefaultsUnionsRegistryAndPreservesExplicitGlobalDisabled(t *testing.T) {
	defaults := DefaultSettings()
	defaults.Registry = []RegistryEntry{{ID: "a", Name: "A"}}

	disabled := false
	loaded := Settings{
		Registry:      []RegistryEntry{{ID: "b", Name: "B"}},
		GlobalEnabled: &disabled,
		Enabled:       map[string]bool{"a": true},
	}

	merged := MergeDefaults(loaded, defaults)
	require.Len(t, merged.Registry, 2)
	require.False(t, *merged.GlobalEnabled, "an explicit globalEnabled=false in the loaded document must be preserved")
	require.True(t, merged.Enabled["a"])
}

func TestMergeDefaultsPreservesConnectorsWhenLoadedHasSome(t *testing.T) {
	defaults := DefaultSettings()
	loaded := Settings{
		Connectors: ConnectorsDoc{
			ByID:  map[string]webhook.Connector{"c1": {ID: "c1", Name: "hook"}},
			Order: []string{"c1"},
		},
	}

	merged := MergeDefaults(loaded, defaults)
	require.Equal(t, []string{"c1"}, merged.Connectors.Order)
	require.Equal(t, "hook", merged.Connectors.ByID["c1"].Name)
}

func TestEnabledForURLRequiresGlobalScriptAndPatternMatch(t *testing.T) {
	s := DefaultSettings()
	entry := RegistryEntry{ID: "script1", Matches: []string{"https://chatgpt.com/*"}}
	s.Registry = []RegistryEntry{entry}
	s.Enabled = map[string]bool{"script1": true}

	require.True(t, EnabledForURL(s, entry, "https://chatgpt.com/c/abc"))
	require.False(t, EnabledForURL(s, entry, "https://example.com/"))

	disabled := false
	s.GlobalEnabled = &disabled
	require.False(t, EnabledForURL(s, entry, "https://chatgpt.com/c/abc"), "globalEnabled=false must override a per-script enable")
}

func TestEnabledScriptsForURLReturnsOnlyMatchingEnabledEntries(t *testing.T) {
	s := DefaultSettings()
	s.Registry = []RegistryEntry{
		{ID: "a", Matches: []string{"https://chatgpt.com/*"}},
		{ID: "b", Matches: []string{"https://claude.ai/*"}},
	}
	s.Enabled = map[string]bool{"a": true, "b": true}

	ids := EnabledScriptsForURL(s, "https://chatgpt.com/c/abc")
	require.Equal(t, []string{"a"}, ids)
}
