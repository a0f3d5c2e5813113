package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"groupage/core"
	"groupage/service"
	"groupage/storage"

	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) validateAnnouncement(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	token := r.URL.Query().Get("token")

	updated, err := s.transitions.Validate(r.Context(), reference, token, s.now().UTC())
	if err != nil {
		s.writeGuardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, publicView(updated))
}

func (s *Server) deleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	token := r.URL.Query().Get("token")

	updated, err := s.transitions.Delete(r.Context(), reference, token, s.now().UTC())
	if err != nil {
		s.writeGuardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, publicView(updated))
}

func (s *Server) editAnnouncement(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	token := r.URL.Query().Get("token")

	var fields core.FieldPatch
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	updated, err := s.transitions.Edit(r.Context(), reference, token, fields, s.now().UTC())
	if err != nil {
		s.writeGuardError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, publicView(updated))
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sweeper.Run(r.Context(), s.now().UTC())
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Errorw("Sweep run failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "record store unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) runMigration(w http.ResponseWriter, r *http.Request) {
	summary, err := s.migrator.Run(r.Context())
	if err != nil {
		s.logger.Errorw("Backfill run failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "record store unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) runAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.auditor.Run(r.Context(), s.now().UTC())
	if err != nil {
		s.logger.Errorw("Audit run failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "record store unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeGuardError maps guard failures onto HTTP status codes. Token
// mismatches and unknown references both answer 404 so token probing
// reveals nothing; terminal states answer 410; wrong-state attempts 409.
// Guard failures are expected outcomes and never 5xx.
func (s *Server) writeGuardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrTokenMismatch) || storage.IsNotFound(err):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "announcement or token not found"})
	case errors.Is(err, core.ErrAlreadyExpired):
		s.writeJSON(w, http.StatusGone, errorResponse{Error: "announcement already expired"})
	case errors.Is(err, core.ErrAlreadyDeleted):
		s.writeJSON(w, http.StatusGone, errorResponse{Error: "announcement already deleted"})
	case errors.Is(err, core.ErrInvalidTransition):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "transition not allowed"})
	case errors.Is(err, core.ErrImmutableField):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		s.logger.Errorw("Transition failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "record store unavailable"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorw("Failed to encode response", "error", err)
	}
}

// announcementView is the public shape of an announcement; tokens never
// leave the engine.
type announcementView struct {
	Reference        string `json:"reference"`
	RequestType      string `json:"request_type"`
	Status           string `json:"status"`
	ShippingDate     string `json:"shipping_date,omitempty"`
	PeriodStart      string `json:"shipping_period_start,omitempty"`
	PeriodEnd        string `json:"shipping_period_end,omitempty"`
	ExpiresAt        string `json:"expires_at,omitempty"`
	ExpiredAt        string `json:"expired_at,omitempty"`
	ExpirationReason string `json:"expiration_reason,omitempty"`
	Departure        string `json:"departure,omitempty"`
	Arrival          string `json:"arrival,omitempty"`
	Description      string `json:"description,omitempty"`
}

func publicView(a *core.Announcement) announcementView {
	return announcementView{
		Reference:        a.Reference,
		RequestType:      string(a.RequestType),
		Status:           string(a.Status),
		ShippingDate:     a.ShippingDate,
		PeriodStart:      a.ShippingPeriodStart,
		PeriodEnd:        a.ShippingPeriodEnd,
		ExpiresAt:        a.ExpiresAt,
		ExpiredAt:        a.ExpiredAt,
		ExpirationReason: string(a.ExpirationReason),
		Departure:        a.Departure,
		Arrival:          a.Arrival,
		Description:      a.Description,
	}
}
