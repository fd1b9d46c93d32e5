// Package loader implements the Module Loader described in spec §4.6: a
// manifest fetch followed by concurrent, dependency-ordered module fetches
// through a chain of fetchers, verified by SHA-256 and handed to a receiver.
package loader

import (
	"encoding/json"
	"net/url"

	zipline "github.com/ziplinekit/zipline"
)

// ModuleEntry is one node of a manifest's dependency DAG. ID is populated
// from the enclosing map key, not from this struct's own JSON encoding
// (spec §6's wire format keys modules by id rather than listing it inline).
type ModuleEntry struct {
	ID           string   `json:"-"`
	URL          string   `json:"url"`
	Sha256       string   `json:"sha256"`
	DependsOnIDs []string `json:"dependsOnIds,omitempty"`
}

// Manifest describes one application's code modules (spec §4.6 "Manifest
// stage"). AppName comes from the "<applicationName>.manifest.zipline.json"
// filename convention (spec §6), not from the manifest body itself.
type Manifest struct {
	AppName string
	Modules []ModuleEntry
}

// wireManifest mirrors spec §6's exact wire shape:
// { "modules": { "<id>": { "url", "sha256", "dependsOnIds" } ... } }.
type wireManifest struct {
	Modules map[string]ModuleEntry `json:"modules"`
}

// MarshalJSON renders m in spec §6's wire shape.
func (m Manifest) MarshalJSON() ([]byte, error) {
	w := wireManifest{Modules: make(map[string]ModuleEntry, len(m.Modules))}
	for _, mod := range m.Modules {
		w.Modules[mod.ID] = mod
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses spec §6's wire shape, leaving AppName unset — callers
// fill it in from the manifest's filename.
func (m *Manifest) UnmarshalJSON(raw []byte) error {
	var w wireManifest
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	m.Modules = make([]ModuleEntry, 0, len(w.Modules))
	for id, mod := range w.Modules {
		mod.ID = id
		m.Modules = append(m.Modules, mod)
	}
	return nil
}

// parseManifest decodes manifest bytes and resolves each module's URL
// against the manifest's own URL (absolute URLs pass through unchanged).
func parseManifest(raw []byte, appName, manifestURL string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &zipline.ManifestParseError{URL: manifestURL, Err: err}
	}
	m.AppName = appName

	base, err := url.Parse(manifestURL)
	if err == nil {
		for i := range m.Modules {
			if resolved, err := base.Parse(m.Modules[i].URL); err == nil {
				m.Modules[i].URL = resolved.String()
			}
		}
	}
	return &m, nil
}

// checkAcyclic verifies the manifest's dependsOnIds graph has no cycle,
// failing fast before any module fetch is started.
func checkAcyclic(m *Manifest) error {
	byID := make(map[string]ModuleEntry, len(m.Modules))
	for _, mod := range m.Modules {
		byID[mod.ID] = mod
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(m.Modules))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return &zipline.ManifestCycleError{ModuleID: id}
		}
		state[id] = visiting
		for _, dep := range byID[id].DependsOnIDs {
			if _, ok := byID[dep]; !ok {
				return &zipline.ManifestUnknownDependencyError{ModuleID: id, DependsOnID: dep}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, mod := range m.Modules {
		if err := visit(mod.ID); err != nil {
			return err
		}
	}
	return nil
}

// equal reports whether two manifests are structurally identical — same app
// name and same set of modules (order-independent), used by LoadContinuously
// to suppress redundant emissions (spec §4.6 "Continuous mode").
func (m *Manifest) equal(other *Manifest) bool {
	if other == nil || m.AppName != other.AppName || len(m.Modules) != len(other.Modules) {
		return false
	}
	byID := make(map[string]ModuleEntry, len(m.Modules))
	for _, mod := range m.Modules {
		byID[mod.ID] = mod
	}
	for _, mod := range other.Modules {
		existing, ok := byID[mod.ID]
		if !ok || existing.URL != mod.URL || existing.Sha256 != mod.Sha256 || len(existing.DependsOnIDs) != len(mod.DependsOnIDs) {
			return false
		}
		for i, dep := range existing.DependsOnIDs {
			if mod.DependsOnIDs[i] != dep {
				return false
			}
		}
	}
	return true
}
