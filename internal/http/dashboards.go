package http

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/dashboard"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/validation"
)

// dashboardResponse is a view snapshot tagged with its session id.
type dashboardResponse struct {
	ID string `json:"id"`
	dashboard.View
}

// locationFromRequest validates a location body. A missing name is replaced by the coordinates.
func locationFromRequest(req validation.LocationRequest) (models.Location, error) {
	if err := validation.Struct(req); err != nil {
		return models.Location{}, err
	}
	loc := models.Location{Lat: *req.Lat, Lon: *req.Lon}
	if req.Name == "" {
		loc.Name = fmt.Sprintf("%.4f, %.4f", loc.Lat, loc.Lon)
		return loc, nil
	}
	name, err := validation.NormalizeLocationName(req.Name, 1, locationMaxLen)
	if err != nil {
		return models.Location{}, invalidInput(err)
	}
	loc.Name = name
	return loc, nil
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (string, *dashboard.Controller, bool) {
	id := mux.Vars(r)["id"]
	ctrl, err := h.registry.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return "", nil, false
	}
	return id, ctrl, true
}

func writeView(w http.ResponseWriter, status int, id string, ctrl *dashboard.Controller) {
	writeJSON(w, status, dashboardResponse{ID: id, View: ctrl.View()})
}

// CreateDashboard handles POST /dashboards. An empty body loads the default
// location. The session is discarded when the initial load fails.
func (h *Handler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	loc := h.cfg.DefaultLocation
	if r.ContentLength != 0 {
		var req validation.LocationRequest
		if err := decodeBody(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
		var err error
		if loc, err = locationFromRequest(req); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	id, ctrl := h.registry.Create()
	logger := observability.LoggerFromContext(r.Context(), h.logger).With(zap.String("dashboard_id", id))

	err := ctrl.SetLocation(r.Context(), loc)
	h.record(err)
	if err != nil {
		_ = h.registry.Delete(id)
		logger.Warn("dashboard initial load failed", zap.String("location", loc.Name), zap.Error(err))
		writeServiceError(w, r, err)
		return
	}
	logger.Info("dashboard created", zap.String("location", loc.Name))
	writeView(w, http.StatusCreated, id, ctrl)
}

// GetDashboard handles GET /dashboards/{id}.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	writeView(w, http.StatusOK, id, ctrl)
}

// PutLocation handles PUT /dashboards/{id}/location. A failed load keeps the
// previous data; the view's last_error says why.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.LocationRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	loc, err := locationFromRequest(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = ctrl.SetLocation(r.Context(), loc)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeView(w, http.StatusOK, id, ctrl)
}

// RefreshDashboard handles POST /dashboards/{id}/refresh.
func (h *Handler) RefreshDashboard(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	err := ctrl.Refresh(r.Context())
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeView(w, http.StatusOK, id, ctrl)
}

// PredictDashboard handles POST /dashboards/{id}/predict.
func (h *Handler) PredictDashboard(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	err := ctrl.Predict(r.Context())
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeView(w, http.StatusOK, id, ctrl)
}

// PageCarousel handles POST /dashboards/{id}/carousel.
func (h *Handler) PageCarousel(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.CarouselRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ctrl.PageCarousel(req.Delta)
	writeView(w, http.StatusOK, id, ctrl)
}

// CarouselToday handles POST /dashboards/{id}/carousel/today.
func (h *Handler) CarouselToday(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	ctrl.JumpToToday()
	writeView(w, http.StatusOK, id, ctrl)
}

// SelectDay handles POST /dashboards/{id}/select.
func (h *Handler) SelectDay(w http.ResponseWriter, r *http.Request) {
	id, ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.SelectDayRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := ctrl.SelectDay(req.Date); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeView(w, http.StatusOK, id, ctrl)
}

// DeleteDashboard handles DELETE /dashboards/{id}.
func (h *Handler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
