package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/pkg/validator"
	"hookguard/internal/platform/audit"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
)

type EndpointHandler struct {
	repo  *repositories.EndpointRepository
	audit *audit.Logger
}

func NewEndpointHandler(repo *repositories.EndpointRepository, auditLogger *audit.Logger) *EndpointHandler {
	return &EndpointHandler{repo: repo, audit: auditLogger}
}

type endpointRequest struct {
	URL         *string  `json:"url"`
	Description *string  `json:"description"`
	Events      []string `json:"events"`
	Status      *string  `json:"status"`
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	endpoint := &models.Endpoint{Events: req.Events, Status: models.EndpointActive}
	if req.URL != nil {
		endpoint.URL = *req.URL
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
	}
	if req.Status != nil {
		endpoint.Status = *req.Status
	}

	if err := validateEndpoint(endpoint); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	if err := h.repo.Create(endpoint); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create endpoint", nil)
		return
	}

	h.audit.Log(r.Context(), "endpoint.created", "endpoint", endpoint.ID, map[string]interface{}{
		"url":    endpoint.URL,
		"events": endpoint.Events,
	})

	errors.WriteJSON(w, http.StatusCreated, endpoint)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.repo.List()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list endpoints", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, endpoints)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.load(w, r)
	if !ok {
		return
	}
	errors.WriteJSON(w, http.StatusOK, endpoint)
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := h.load(w, r)
	if !ok {
		return
	}

	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	changes := map[string]interface{}{}
	if req.URL != nil {
		endpoint.URL = *req.URL
		changes["url"] = endpoint.URL
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
		changes["description"] = endpoint.Description
	}
	if req.Events != nil {
		endpoint.Events = req.Events
		changes["events"] = endpoint.Events
	}
	if req.Status != nil {
		endpoint.Status = *req.Status
		changes["status"] = endpoint.Status
	}

	if err := validateEndpoint(endpoint); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	if err := h.repo.Update(endpoint); err != nil {
		if stderrors.Is(err, repositories.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Endpoint not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to update endpoint", nil)
		return
	}

	h.audit.Log(r.Context(), "endpoint.updated", "endpoint", endpoint.ID, changes)
	errors.WriteJSON(w, http.StatusOK, endpoint)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := endpointID(r)
	if err := h.repo.Delete(id); err != nil {
		if stderrors.Is(err, repositories.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Endpoint not found", nil)
			return
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to delete endpoint", nil)
		return
	}

	h.audit.Log(r.Context(), "endpoint.deleted", "endpoint", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) load(w http.ResponseWriter, r *http.Request) (*models.Endpoint, bool) {
	endpoint, err := h.repo.GetByID(endpointID(r))
	if err != nil {
		if stderrors.Is(err, repositories.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Endpoint not found", nil)
			return nil, false
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load endpoint", nil)
		return nil, false
	}
	return endpoint, true
}

func endpointID(r *http.Request) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName("endpoint_id")
}

func validateEndpoint(e *models.Endpoint) error {
	if err := validator.EndpointURL(e.URL); err != nil {
		return err
	}
	if err := validator.EventNames(e.Events); err != nil {
		return err
	}
	if e.Status != models.EndpointActive && e.Status != models.EndpointPaused {
		return fmt.Errorf("status must be %q or %q", models.EndpointActive, models.EndpointPaused)
	}
	return nil
}
