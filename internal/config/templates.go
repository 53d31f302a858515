// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/log"
)

// templateFile is the YAML shape of a template definition file.
type templateFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	Name string `yaml:"name"`

	Game struct {
		Title       string `yaml:"title"`
		Subtitle    string `yaml:"subtitle"`
		Description string `yaml:"description"`
	} `yaml:"game"`

	Pregame struct {
		Title       string `yaml:"title"`
		Subtitle    string `yaml:"subtitle"`
		Description string `yaml:"description"`
	} `yaml:"pregame"`

	Postgame struct {
		Title               string `yaml:"title"`
		Subtitle            string `yaml:"subtitle"`
		Description         string `yaml:"description"`
		NotFinalDescription string `yaml:"not_final_description"`
	} `yaml:"postgame"`

	Idle struct {
		Title               string `yaml:"title"`
		Subtitle            string `yaml:"subtitle"`
		Description         string `yaml:"description"`
		FinalDescription    string `yaml:"final_description"`
		NotFinalDescription string `yaml:"not_final_description"`
	} `yaml:"idle"`

	Offseason struct {
		Enabled     bool   `yaml:"enabled"`
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	} `yaml:"offseason"`

	ArtworkURL          string `yaml:"artwork_url"`
	GameDurationMinutes int    `yaml:"game_duration_minutes"`

	Conditions []struct {
		Kind     string `yaml:"kind"`
		Value    string `yaml:"value"`
		Priority int    `yaml:"priority"`
		Template string `yaml:"template"`
	} `yaml:"conditions"`
}

// TemplateWatcher loads template definitions from a YAML file and reloads
// them when the file changes. Readers get a consistent snapshot.
type TemplateWatcher struct {
	path string

	mu        sync.RWMutex
	templates []epg.Template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewTemplateWatcher loads the file and starts watching it. A missing file
// is not an error; the watcher serves an empty set until it appears.
func NewTemplateWatcher(path string) (*TemplateWatcher, error) {
	tw := &TemplateWatcher{path: path, done: make(chan struct{})}
	if err := tw.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("template watcher: %w", err)
	}
	// Watch the directory: editors replace files by rename, which drops a
	// watch placed on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	tw.watcher = w
	go tw.loop()
	return tw, nil
}

// Templates returns the current template set.
func (tw *TemplateWatcher) Templates() []epg.Template {
	tw.mu.RLock()
	defer tw.mu.RUnlock()
	out := make([]epg.Template, len(tw.templates))
	copy(out, tw.templates)
	return out
}

// Close stops watching.
func (tw *TemplateWatcher) Close() error {
	close(tw.done)
	return tw.watcher.Close()
}

func (tw *TemplateWatcher) loop() {
	logger := log.WithComponent("templates")
	for {
		select {
		case <-tw.done:
			return
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(tw.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := tw.reload(); err != nil {
				logger.Warn().Err(err).
					Str("event", "reload.failed").
					Str("path", tw.path).
					Msg("template reload failed, keeping previous set")
				continue
			}
			logger.Info().
				Str("event", "reload.ok").
				Str("path", tw.path).
				Msg("templates reloaded")
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).
				Str("event", "watch.error").
				Msg("template watch error")
		}
	}
}

func (tw *TemplateWatcher) reload() error {
	data, err := os.ReadFile(tw.path)
	if err != nil {
		return err
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", tw.path, err)
	}

	templates := make([]epg.Template, 0, len(file.Templates))
	for _, e := range file.Templates {
		templates = append(templates, projectTemplate(e))
	}

	tw.mu.Lock()
	tw.templates = templates
	tw.mu.Unlock()
	return nil
}

func projectTemplate(e templateEntry) epg.Template {
	t := epg.Template{
		Name:                        e.Name,
		GameTitle:                   e.Game.Title,
		GameSubtitle:                e.Game.Subtitle,
		GameDescription:             e.Game.Description,
		PregameTitle:                e.Pregame.Title,
		PregameSubtitle:             e.Pregame.Subtitle,
		PregameDescription:          e.Pregame.Description,
		PostgameTitle:               e.Postgame.Title,
		PostgameSubtitle:            e.Postgame.Subtitle,
		PostgameDescription:         e.Postgame.Description,
		PostgameNotFinalDescription: e.Postgame.NotFinalDescription,
		IdleTitle:                   e.Idle.Title,
		IdleSubtitle:                e.Idle.Subtitle,
		IdleDescription:             e.Idle.Description,
		IdleFinalDescription:        e.Idle.FinalDescription,
		IdleNotFinalDescription:     e.Idle.NotFinalDescription,
		OffseasonEnabled:            e.Offseason.Enabled,
		OffseasonTitle:              e.Offseason.Title,
		OffseasonDescription:        e.Offseason.Description,
		ArtworkURL:                  e.ArtworkURL,
		GameDurationMinutes:         e.GameDurationMinutes,
	}
	for _, c := range e.Conditions {
		t.Conditionals = append(t.Conditionals, epg.ConditionalDescription{
			Kind:     epg.ConditionKind(c.Kind),
			Value:    c.Value,
			Priority: c.Priority,
			Template: c.Template,
		})
	}
	return t
}
