package wsserver

import (
	"crypto/subtle"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

const headerAPIKey = "X-API-Key"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

type removeSubscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Removed        int    `json:"removed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Clients: s.ClientCount()})
}

// handleAdminRemoveSubscription removes a subscription id from every client that holds it.
func (s *Server) handleAdminRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.Header.Get(headerAPIKey)) {
		s.logWarn(logMsgAdminUnauthorized, logAttrRemoteAddr, r.RemoteAddr)
		s.count(metricAdminRequests, map[string]string{labelStatus: "unauthorized"})
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	subID := r.PathValue("id")
	removed := s.remover.RemoveSubscriptionByID(subID)

	s.logInfo(logMsgAdminRemoved, logAttrSubscriptionID, subID, logAttrRemovedCount, removed)
	s.count(metricAdminRequests, map[string]string{labelStatus: "success"})
	writeJSON(w, http.StatusOK, removeSubscriptionResponse{SubscriptionID: subID, Removed: removed})
}

// authorized compares in constant time against every configured key. No keys means no admin access.
func (s *Server) authorized(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	allowed := false
	for _, key := range s.adminKeys.ToSlice() {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			allowed = true
		}
	}

	return allowed
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
