package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/corebound/agentrt/rterrors"
)

// issueTokenRequest is /auth/token's request body per spec.md §6.
type issueTokenRequest struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

type issueTokenResponse struct {
	Token string `json:"token"`
}

// handleIssueToken mints a bearer token for the caller-supplied user id and
// permission list. This endpoint is itself public (spec.md §6 lists
// /auth/token among the public paths) — it is the runtime operator's
// responsibility to gate who may reach it at the network edge, the same
// boundary the teacher leaves to its own deployment documentation.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())

	var body issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidJSON, err.Error()))
		return
	}
	if body.UserID == "" {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindMissingRequiredField, "user_id is required").
			WithDetails(map[string]any{"field": "user_id"}))
		return
	}

	token, err := s.validator.IssueToken(body.UserID, body.Permissions)
	if err != nil {
		writeRuntimeError(w, rterrors.Wrap(reqID, rterrors.KindTokenCreationFailed, err))
		return
	}

	writeJSON(w, http.StatusOK, issueTokenResponse{Token: token})
}
