package health

import (
	"encoding/json"
	"net/http"
)

// RegisterRoutes installs the probe endpoints on the admin mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/health/detailed", m.handleDetailed)
	mux.HandleFunc("/readiness", m.handleReadiness)
	mux.HandleFunc("/liveness", m.handleLiveness)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	overall := m.Overall()
	w.Header().Set("Content-Type", "application/json")
	if overall.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(overall)
}

func (m *Manager) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Detailed())
}

func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !m.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]bool{"ready": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"ready": true})
}

func (m *Manager) handleLiveness(w http.ResponseWriter, r *http.Request) {
	// Liveness only proves the process can serve HTTP.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"live": true})
}
