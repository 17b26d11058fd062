package server

import (
	"encoding/json"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/periplon/metis/internal/config"
)

// redactSettings returns a copy of cfg with provider credentials blanked,
// the same redaction posture provider.go's redactProviderRecord applies to
// individual provider records.
func redactSettings(cfg config.Config) config.Config {
	redacted := make(map[string]config.LLMConfig, len(cfg.Providers))
	for key, p := range cfg.Providers {
		p.APIKey = ""
		redacted[key] = p
	}
	cfg.Providers = redacted
	return cfg
}

// GetSettingsAPI handles GET /api/config/settings.
func (s *Server) GetSettingsAPI(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		httpResponse(w, "settings not configured", http.StatusServiceUnavailable)
		return
	}
	s.settingsMu.RLock()
	current := *s.settings
	s.settingsMu.RUnlock()

	httpResponseJSON(w, redactSettings(current), http.StatusOK)
}

// PutSettingsAPI handles PUT /api/config/settings, replacing the live
// in-memory configuration. It does not persist to disk; call
// POST /api/config/save-disk to do that explicitly (/save-s3 always
// answers 501).
func (s *Server) PutSettingsAPI(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		httpResponse(w, "settings not configured", http.StatusServiceUnavailable)
		return
	}

	var next config.Config
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		httpResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.settingsMu.Lock()
	*s.settings = next
	s.settingsMu.Unlock()

	httpResponseJSON(w, redactSettings(next), http.StatusOK)
}

// SaveSettingsDiskAPI handles POST /api/config/save-disk, writing the
// live settings to the server's configured settings file path as YAML.
func (s *Server) SaveSettingsDiskAPI(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		httpResponse(w, "settings not configured", http.StatusServiceUnavailable)
		return
	}
	if s.settingsPath == "" {
		httpResponse(w, "no settings path configured", http.StatusServiceUnavailable)
		return
	}

	s.settingsMu.RLock()
	data, err := yaml.Marshal(*s.settings)
	s.settingsMu.RUnlock()
	if err != nil {
		httpResponse(w, "failed to encode settings", http.StatusInternalServerError)
		return
	}

	if err := os.WriteFile(s.settingsPath, data, 0o600); err != nil {
		httpResponse(w, "failed to write settings file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	httpResponse(w, "settings saved", http.StatusOK)
}

// SaveSettingsS3API handles POST /api/config/save-s3. No object-storage
// client is part of this module's dependency set (no S3/MinIO SDK in
// go.mod), so this endpoint reports the feature as unavailable rather
// than hand-rolling a signed-request client for it.
func (s *Server) SaveSettingsS3API(w http.ResponseWriter, r *http.Request) {
	httpResponse(w, "save-s3 is not configured on this deployment", http.StatusNotImplemented)
}
