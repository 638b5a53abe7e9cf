package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chainwatch/monitor/internal/model"
)

// Bundle is everything the monitor reads once at startup and shares across
// the pipeline: networks, monitors, and triggers, plus cross-reference
// validation between them (spec §6). Every field is read-only after
// LoadBundle except a monitor's Paused flag, which the admin API may flip
// at runtime — mu guards that one mutable path.
type Bundle struct {
	Networks map[string]*model.Network
	Monitors []*model.Monitor
	Triggers map[string]*model.Trigger

	mu sync.RWMutex
}

// LoadBundle scans networks/, monitors/, and triggers/ under root and
// validates every entity plus the cross-references between monitors,
// networks, and triggers. A failed validation aborts startup (spec §6).
func LoadBundle(root string) (*Bundle, error) {
	networks, err := loadNetworks(filepath.Join(root, "networks"))
	if err != nil {
		return nil, err
	}
	monitors, err := loadMonitors(filepath.Join(root, "monitors"))
	if err != nil {
		return nil, err
	}
	triggers, err := loadTriggers(filepath.Join(root, "triggers"))
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Networks: networks, Monitors: monitors, Triggers: triggers}
	if err := bundle.crossValidate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Lookup resolves a trigger by ID, satisfying internal/trigger.TriggerSource.
func (b *Bundle) Lookup(id string) (*model.Trigger, bool) {
	trig, ok := b.Triggers[id]
	return trig, ok
}

// MonitorsForNetwork returns the non-paused monitors configured for slug,
// satisfying internal/watcher's MonitorSource contract.
func (b *Bundle) MonitorsForNetwork(slug string) []model.Monitor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Monitor
	for _, m := range b.Monitors {
		if m.Paused {
			continue
		}
		if m.AppliesToNetwork(slug) {
			out = append(out, *m)
		}
	}
	return out
}

// SetMonitorPaused flips the Paused flag on the named monitor, reporting
// whether it was found. Used by the admin API's pause/resume endpoint —
// the only runtime mutation of an otherwise read-only Bundle.
func (b *Bundle) SetMonitorPaused(name string, paused bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.Monitors {
		if m.Name == name {
			m.Paused = paused
			return true
		}
	}
	return false
}

// AllMonitors returns a snapshot of every configured monitor, paused or
// not, for the admin API's list endpoint.
func (b *Bundle) AllMonitors() []model.Monitor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Monitor, len(b.Monitors))
	for i, m := range b.Monitors {
		out[i] = *m
	}
	return out
}

func (b *Bundle) crossValidate() error {
	for _, m := range b.Monitors {
		for _, slug := range m.Networks {
			if _, ok := b.Networks[slug]; !ok {
				return fmt.Errorf("monitor %s: network %q does not exist", m.Name, slug)
			}
		}
		for _, id := range m.TriggerIDs {
			if _, ok := b.Triggers[id]; !ok {
				return fmt.Errorf("monitor %s: trigger %q does not exist", m.Name, id)
			}
		}
	}
	return nil
}

func loadNetworks(dir string) (map[string]*model.Network, error) {
	files, err := jsonFilesIn(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Network, len(files))
	for _, f := range files {
		var n model.Network
		if err := readJSONFile(f, &n); err != nil {
			return nil, fmt.Errorf("networks/%s: %w", filepath.Base(f), err)
		}
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("networks/%s: %w", filepath.Base(f), err)
		}
		if _, exists := out[n.Slug]; exists {
			return nil, fmt.Errorf("networks/%s: duplicate slug %q", filepath.Base(f), n.Slug)
		}
		network := n
		out[n.Slug] = &network
	}
	return out, nil
}

func loadMonitors(dir string) ([]*model.Monitor, error) {
	files, err := jsonFilesIn(dir)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Monitor, 0, len(files))
	for _, f := range files {
		var m model.Monitor
		if err := readJSONFile(f, &m); err != nil {
			return nil, fmt.Errorf("monitors/%s: %w", filepath.Base(f), err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("monitors/%s: %w", filepath.Base(f), err)
		}
		monitor := m
		out = append(out, &monitor)
	}
	return out, nil
}

// loadTriggers reads triggers/*.json, each file a JSON object mapping
// trigger-name -> trigger body (spec §6).
func loadTriggers(dir string) (map[string]*model.Trigger, error) {
	files, err := jsonFilesIn(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Trigger)
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("triggers/%s: %w", filepath.Base(f), err)
		}
		var body map[string]model.Trigger
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("triggers/%s: %w", filepath.Base(f), err)
		}
		for name, trigger := range body {
			trigger := trigger
			trigger.Name = name
			if err := trigger.Validate(); err != nil {
				return nil, fmt.Errorf("triggers/%s: %w", filepath.Base(f), err)
			}
			if _, exists := out[name]; exists {
				return nil, fmt.Errorf("triggers/%s: duplicate trigger id %q", filepath.Base(f), name)
			}
			out[name] = &trigger
		}
	}
	return out, nil
}

func jsonFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
