package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hwlab/inventory/internal/core/domain"
	"github.com/hwlab/inventory/internal/core/service"
)

type HTTPHandler struct {
	reservations *service.ReservationService
}

func NewHTTPHandler(reservations *service.ReservationService) *HTTPHandler {
	return &HTTPHandler{reservations: reservations}
}

// Register wires all routes onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/checkout", h.CheckOut)
	mux.HandleFunc("/api/checkin", h.CheckIn)
	mux.HandleFunc("/api/availability", h.GetAvailability)
	mux.HandleFunc("/api/hardware", h.Hardware)
	mux.HandleFunc("/api/hardware/capacity", h.UpdateCapacity)
}

type CheckoutHTTPRequest struct {
	RequestID    string `json:"request_id"`
	Username     string `json:"username"`
	ProjectID    string `json:"project_id"`
	HardwareName string `json:"hardware_name"`
	Quantity     int    `json:"quantity"`
}

type AvailabilityHTTPResponse struct {
	HardwareName  string `json:"hardware_name"`
	TotalCapacity int    `json:"total_capacity"`
	Available     int    `json:"available"`
	CheckedOut    int    `json:"checked_out"`
}

type MutationHTTPResponse struct {
	Success        bool                      `json:"success"`
	Message        string                    `json:"message,omitempty"`
	ConfirmationID string                    `json:"confirmation_id,omitempty"`
	Availability   *AvailabilityHTTPResponse `json:"availability,omitempty"`
}

type CreateHardwareSetHTTPRequest struct {
	Name          string `json:"hardware_name"`
	Description   string `json:"description"`
	TotalCapacity int    `json:"total_capacity"`
}

type UpdateCapacityHTTPRequest struct {
	Name          string `json:"hardware_name"`
	TotalCapacity int    `json:"total_capacity"`
}

func (h *HTTPHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CheckoutHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" || req.Username == "" || req.ProjectID == "" || req.HardwareName == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "missing required fields"})
		return
	}

	conf, err := h.reservations.CheckOut(r.Context(), service.CheckoutRequest{
		RequestID:    req.RequestID,
		Username:     req.Username,
		ProjectID:    req.ProjectID,
		HardwareName: req.HardwareName,
		Quantity:     req.Quantity,
	})
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, MutationHTTPResponse{
		Success:        true,
		Message:        "hardware checked out successfully",
		ConfirmationID: conf.ConfirmationID,
		Availability:   toAvailabilityResponse(conf.Availability),
	})
}

func (h *HTTPHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CheckoutHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.RequestID == "" || req.Username == "" || req.ProjectID == "" || req.HardwareName == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "missing required fields"})
		return
	}

	conf, err := h.reservations.CheckIn(r.Context(), service.CheckinRequest{
		RequestID:    req.RequestID,
		Username:     req.Username,
		ProjectID:    req.ProjectID,
		HardwareName: req.HardwareName,
		Quantity:     req.Quantity,
	})
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, MutationHTTPResponse{
		Success:        true,
		Message:        "hardware checked in successfully",
		ConfirmationID: conf.ConfirmationID,
		Availability:   toAvailabilityResponse(conf.Availability),
	})
}

func (h *HTTPHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("hardware")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "missing hardware parameter"})
		return
	}

	av, err := h.reservations.GetAvailability(r.Context(), name)
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(*av))
}

// Hardware serves GET (list all sets) and POST (create a set).
func (h *HTTPHandler) Hardware(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listHardwareSets(w, r)
	case http.MethodPost:
		h.createHardwareSet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) listHardwareSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.reservations.ListHardwareSets(r.Context())
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}

	resp := make([]AvailabilityHTTPResponse, 0, len(sets))
	for _, hw := range sets {
		resp = append(resp, AvailabilityHTTPResponse{
			HardwareName:  hw.Name,
			TotalCapacity: hw.TotalCapacity,
			Available:     hw.Available(),
			CheckedOut:    hw.CheckedOut,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) createHardwareSet(w http.ResponseWriter, r *http.Request) {
	var req CreateHardwareSetHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "invalid request body"})
		return
	}

	av, err := h.reservations.CreateHardwareSet(r.Context(), service.CreateHardwareSetRequest{
		Name:          req.Name,
		Description:   req.Description,
		TotalCapacity: req.TotalCapacity,
	})
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusCreated, MutationHTTPResponse{
		Success:      true,
		Message:      "hardware set created successfully",
		Availability: toAvailabilityResponse(*av),
	})
}

func (h *HTTPHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateCapacityHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, MutationHTTPResponse{Message: "missing required fields"})
		return
	}

	av, err := h.reservations.UpdateCapacity(r.Context(), req.Name, req.TotalCapacity)
	if err != nil {
		status, message := statusForError(err)
		writeJSON(w, status, MutationHTTPResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, MutationHTTPResponse{
		Success:      true,
		Message:      "hardware capacity updated successfully",
		Availability: toAvailabilityResponse(*av),
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidHardwareName),
		errors.Is(err, domain.ErrInvalidCapacity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrHardwareNotFound),
		errors.Is(err, domain.ErrProjectNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrNotProjectMember):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInsufficientAvailability),
		errors.Is(err, domain.ErrOverRelease),
		errors.Is(err, domain.ErrNoActiveCheckout),
		errors.Is(err, domain.ErrHardwareExists),
		errors.Is(err, domain.ErrCapacityBelowCheckout),
		errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func toAvailabilityResponse(av domain.Availability) *AvailabilityHTTPResponse {
	return &AvailabilityHTTPResponse{
		HardwareName:  av.HardwareName,
		TotalCapacity: av.TotalCapacity,
		Available:     av.Available,
		CheckedOut:    av.CheckedOut,
	}
}
