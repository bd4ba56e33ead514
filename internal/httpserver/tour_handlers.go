package httpserver

import (
	"net/http"

	"leaddesk/internal/domain"
	"leaddesk/internal/service"
)

type leadsResponse struct {
	Status string         `json:"status"`
	Leads  []*domain.Lead `json:"leads"`
}

type leadResponse struct {
	Status string       `json:"status"`
	Lead   *domain.Lead `json:"lead"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,max=50"`
}

type tourRequest struct {
	PostID int64  `json:"postId" validate:"required,gt=0"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,max=20"`
}

func viewer(r *http.Request) service.Viewer {
	u := CurrentUser(r)
	return service.Viewer{ID: u.ID, Role: u.Role}
}

// @Summary      List tour leads
// @Description  Agents get the leads they hold plus the open pool; buyers get their own requests
// @Tags         tour
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  leadsResponse
// @Failure      401  {object}  envelope
// @Router       /tour/leads [get]
func handleListLeads(leads *service.LeadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := leads.List(r.Context(), viewer(r))
		if err != nil {
			writeEnvelopeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, leadsResponse{Status: "success", Leads: list})
	}
}

// @Summary      Claim a tour
// @Tags         tour
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "Lead ID"
// @Success      200  {object}  envelope
// @Failure      404  {object}  envelope
// @Failure      409  {object}  envelope
// @Router       /tour/claim-tour/{id} [patch]
func handleClaimTour(leads *service.LeadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeEnvelopeError(w, err)
			return
		}
		if err := leads.Claim(r.Context(), CurrentUser(r).ID, id); err != nil {
			writeEnvelopeError(w, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "success", "Tour claimed successfully")
	}
}

// @Summary      Reject a tour
// @Description  Hides the lead from the caller; a lead the caller holds goes back to the pool
// @Tags         tour
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "Lead ID"
// @Success      200  {object}  envelope
// @Failure      404  {object}  envelope
// @Router       /tour/reject-tour/{id} [post]
func handleRejectTour(leads *service.LeadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeEnvelopeError(w, err)
			return
		}
		if err := leads.Reject(r.Context(), CurrentUser(r).ID, id); err != nil {
			writeEnvelopeError(w, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "success", "Tour rejected")
	}
}

// @Summary      Update tour status
// @Tags         tour
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id     path  int                  true  "Lead ID"
// @Param        input  body  updateStatusRequest  true  "New status"
// @Success      200  {object}  envelope
// @Failure      400  {object}  envelope
// @Failure      403  {object}  envelope
// @Router       /tour/update-status/{id} [patch]
func handleUpdateTourStatus(leads *service.LeadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeEnvelopeError(w, err)
			return
		}
		var req updateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeEnvelopeError(w, err)
			return
		}
		if err := leads.UpdateStatus(r.Context(), CurrentUser(r).ID, id, req.Status); err != nil {
			writeEnvelopeError(w, err)
			return
		}
		writeEnvelope(w, http.StatusOK, "success", "Tour status updated")
	}
}

// @Summary      Request a tour
// @Tags         tour
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input  body  tourRequest  true  "Requested slot"
// @Success      201  {object}  leadResponse
// @Failure      400  {object}  envelope
// @Router       /tour/request [post]
func handleRequestTour(leads *service.LeadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tourRequest
		if err := decodeJSON(r, &req); err != nil {
			writeEnvelopeError(w, err)
			return
		}
		lead, err := leads.Request(r.Context(), CurrentUser(r).ID, service.TourRequestInput{
			PostID: req.PostID,
			Date:   req.Date,
			Time:   req.Time,
		})
		if err != nil {
			writeEnvelopeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, leadResponse{Status: "success", Lead: lead})
	}
}
