package httpx

import (
	"net/http"
)

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Authenticated bool   `json:"authenticated"`
	WSClients     int    `json:"wsClients"`
}

// HealthHandlers serves readiness/liveness checks.
type HealthHandlers struct {
	Session SessionReader
	// Clients reports connected websocket clients. Optional.
	Clients func() int
}

// Check returns 200 with a small status document. HEAD gets headers only.
// GET /healthz.
func (h *HealthHandlers) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}

	resp := HealthResponse{Status: "ok"}
	if h.Session != nil {
		resp.Authenticated = h.Session.State().Authenticated
	}
	if h.Clients != nil {
		resp.WSClients = h.Clients()
	}
	WriteJSON(w, http.StatusOK, resp)
}
