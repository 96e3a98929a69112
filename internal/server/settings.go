package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"nightjar/internal/catalog"
	"nightjar/internal/settings"
)

type modePayload struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Reasoning   bool   `json:"reasoning,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

type togglePayload struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Requires    string `json:"requires,omitempty"`
	Debug       bool   `json:"debug,omitempty"`
}

// getCatalog serves the mode and toggle pickers. Prompt templates stay
// server-side.
func (s *Server) getCatalog(c echo.Context) error {
	defaultName := catalog.DefaultMode().Name
	modes := make([]modePayload, 0, len(catalog.Modes()))
	for _, m := range catalog.Modes() {
		modes = append(modes, modePayload{
			Name:        m.Name,
			Label:       m.Label,
			Icon:        m.Icon,
			Description: m.Description,
			Reasoning:   m.Reasoning,
			Default:     m.Name == defaultName,
		})
	}
	toggles := make([]togglePayload, 0, len(catalog.Toggles()))
	for _, t := range catalog.Toggles() {
		toggles = append(toggles, togglePayload{
			Name:        t.Name,
			Label:       t.Label,
			Icon:        t.Icon,
			Description: t.Description,
			Requires:    t.Requires,
			Debug:       t.Debug,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"modes":   modes,
		"toggles": toggles,
	})
}

// getSettings returns the stored settings verbatim. Credential fields
// come back in their stored form ($VAR indirection included), never
// resolved.
func (s *Server) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.currentSettings())
}

// putSettings replaces the stored settings with the bound body. Fields
// absent from the body keep their current values. The save also wakes the
// settings watcher, which rebuilds the endpoint client.
func (s *Server) putSettings(c echo.Context) error {
	next := *s.currentSettings()
	if err := c.Bind(&next); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if next.Mode != "" {
		if _, ok := catalog.ModeByName(next.Mode); !ok {
			return jsonError(c, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", next.Mode))
		}
	}
	for _, name := range next.Toggles {
		if _, ok := catalog.ToggleByName(name); !ok {
			return jsonError(c, http.StatusBadRequest, fmt.Sprintf("unknown toggle %q", name))
		}
	}
	if err := s.saveSettings(&next); err != nil {
		return jsonError(c, http.StatusInternalServerError, "failed to save settings")
	}
	s.UpdateSettings(&next)
	return c.JSON(http.StatusOK, &next)
}

func (s *Server) saveSettings(next *settings.Settings) error {
	if s.settingsDir != "" {
		return next.SaveTo(s.settingsDir)
	}
	return next.Save()
}
