package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/middleware"
	"github.com/sirupsen/logrus"
)

// APIResponse is the envelope of every JSON response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WhoAmIResponse describes the authenticated principal
type WhoAmIResponse struct {
	UserID        string            `json:"userId"`
	PrincipalName string            `json:"principalName"`
	AuthType      string            `json:"authType"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	LastSyncedAt  int64             `json:"lastSyncedAt,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":        "ok",
		"backend":       s.config.Storage.Backend,
		"loginModule":   !s.loginModule.Inert(),
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		// No challenge: credentials come from the proxy, not the client
		s.writeError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	resp := WhoAmIResponse{
		UserID:        principal.UserID,
		PrincipalName: principal.PrincipalName,
		AuthType:      headerauth.AuthType,
	}
	if principal.Record != nil {
		resp.Attributes = principal.Record.Attributes
		resp.LastSyncedAt = principal.Record.LastSyncedAt
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.authHandler.DropCredentials(w, r)

	if principal, ok := middleware.GetPrincipal(r.Context()); ok {
		logrus.WithField("user_id", principal.UserID).Info("User logged out")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
	logrus.WithField("error", message).WithField("status", statusCode).Debug("API error")
}
