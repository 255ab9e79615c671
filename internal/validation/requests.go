package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps every struct validation failure.
var ErrInvalidInput = errors.New("invalid input")

var validate = validator.New()

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// HistoryQuery is the input to a history fetch. Dates are YYYY-MM-DD.
type HistoryQuery struct {
	Coordinates
	StartDate string `validate:"required,datetime=2006-01-02"`
	EndDate   string `validate:"required,datetime=2006-01-02"`
}

// ForecastQuery is the input to a forecast fetch.
type ForecastQuery struct {
	Coordinates
	Days int `validate:"min=1,max=16"`
}

// PredictionQuery is the input to a prediction fetch.
type PredictionQuery struct {
	Coordinates
	Days int `validate:"min=1,max=14"`
}

// LocationRequest is the body of dashboard create and location change requests.
type LocationRequest struct {
	Name string   `json:"name" validate:"max=100"`
	Lat  *float64 `json:"lat" validate:"required,latitude"`
	Lon  *float64 `json:"lon" validate:"required,longitude"`
}

// CarouselRequest pages the carousel by whole weeks.
type CarouselRequest struct {
	Delta int `json:"delta" validate:"min=-52,max=52"`
}

// SelectDayRequest selects one calendar day.
type SelectDayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// Struct validates v against its tags. Failures are wrapped in ErrInvalidInput
// with one "field: rule" entry per violated constraint.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, strings.ToLower(fe.Field())+": "+rule)
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(parts, ", "))
}

// ValidateCoordinates checks a latitude/longitude pair.
func ValidateCoordinates(lat, lon float64) error {
	return Struct(Coordinates{Lat: lat, Lon: lon})
}
