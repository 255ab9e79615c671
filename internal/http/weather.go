package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kjstillabower/nostradamus/internal/service"
	"github.com/kjstillabower/nostradamus/internal/validation"
)

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", validation.ErrInvalidInput, err)
}

// queryCoordinates reads the required lat and lon query parameters.
func queryCoordinates(r *http.Request) (validation.Coordinates, error) {
	var c validation.Coordinates
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *float64
	}{{"lat", &c.Lat}, {"lon", &c.Lon}} {
		raw := q.Get(p.name)
		if raw == "" {
			return c, invalidInput(fmt.Errorf("%s is required", p.name))
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c, invalidInput(fmt.Errorf("%s: not a number", p.name))
		}
		*p.dst = v
	}
	return c, nil
}

// queryDays reads the optional days parameter.
func queryDays(r *http.Request, defaultVal int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidInput(fmt.Errorf("days: not an integer"))
	}
	return n, nil
}

// GetHistory handles GET /api/weather/history. Without start_date and end_date
// it returns the configured window ending yesterday.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	coords, err := queryCoordinates(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := validation.HistoryQuery{
		Coordinates: coords,
		StartDate:   r.URL.Query().Get("start_date"),
		EndDate:     r.URL.Query().Get("end_date"),
	}
	if q.StartDate == "" && q.EndDate == "" {
		q.StartDate, q.EndDate = service.HistoryRange(time.Now(), h.cfg.HistoryDays)
	}
	if err := validation.Struct(q); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if q.EndDate < q.StartDate {
		writeServiceError(w, r, invalidInput(fmt.Errorf("end_date before start_date")))
		return
	}

	result, err := h.weather.History(r.Context(), q.Lat, q.Lon, q.StartDate, q.EndDate)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /api/weather/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	coords, err := queryCoordinates(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	days, err := queryDays(r, h.cfg.ForecastDays)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := validation.ForecastQuery{Coordinates: coords, Days: days}
	if err := validation.Struct(q); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.weather.Forecast(r.Context(), q.Lat, q.Lon, q.Days)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetPrediction handles GET /api/weather/predict. The provider's model
// performance block is passed through untouched.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	coords, err := queryCoordinates(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	days, err := queryDays(r, h.cfg.PredictionDays)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q := validation.PredictionQuery{Coordinates: coords, Days: days}
	if err := validation.Struct(q); err != nil {
		writeServiceError(w, r, err)
		return
	}

	result, err := h.weather.Prediction(r.Context(), q.Lat, q.Lon, q.Days)
	h.record(err)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
