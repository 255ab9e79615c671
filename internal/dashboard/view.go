package dashboard

import (
	"math"
	"time"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

// NowLabel labels display conditions taken from the current hour.
const NowLabel = "NOW"

const dayLabelLayout = "Monday, 2 Jan"

// Conditions is the headline weather shown next to the charts: either the
// selected day's aggregate or, for today, the nearest hourly reading.
type Conditions struct {
	Label                    string   `json:"label"`
	Temperature              *float64 `json:"temperature"`
	WindSpeed                *float64 `json:"wind_speed"`
	Humidity                 *float64 `json:"humidity"`
	Precipitation            *float64 `json:"precipitation"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
	WeatherCode              *int     `json:"weather_code,omitempty"`
}

// View is a read-only snapshot of a dashboard with every derived value resolved.
type View struct {
	State

	Carousel         []models.DailyRecord `json:"carousel"`
	CarouselFallback bool                 `json:"carousel_fallback"`
	Current          *models.HourlyRecord `json:"current"`
	SelectedDay      *models.DailyRecord  `json:"selected_day"`
	Display          Conditions           `json:"display"`
}

// View derives the carousel window, the current reading and the display
// conditions from the state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{State: c.snapshot()}
	today := c.today()

	v.Carousel, v.CarouselFallback = timeseries.WindowAroundWithFallback(c.state.Daily, today, c.state.CarouselOffset)
	if v.CarouselFallback {
		observability.CarouselFallbacksTotal.Inc()
	}
	if cur, ok := timeseries.NearestTo(c.state.Unified, c.wallClock()); ok {
		v.Current = &cur
	}
	if c.state.SelectedDate != "" {
		if d, ok := c.state.Daily.Find(c.state.SelectedDate); ok {
			v.SelectedDay = &d
		}
	}
	v.Display = displayConditions(v.SelectedDay, v.Current, today)
	return v
}

// displayConditions picks what the headline shows. A selected day other than
// today shows its aggregate; otherwise the current hourly reading is shown.
func displayConditions(selected *models.DailyRecord, current *models.HourlyRecord, today time.Time) Conditions {
	if selected != nil {
		if key, err := timeseries.DateKey(selected.Time); err == nil && key != timeseries.FormatDate(today) {
			day, _ := time.Parse(time.DateOnly, key)
			return Conditions{
				Label:                    day.Format(dayLabelLayout),
				Temperature:              roundHalfUp(selected.TemperatureMax),
				Precipitation:            selected.PrecipitationSum,
				PrecipitationProbability: selected.PrecipitationProbabilityMax,
				WeatherCode:              selected.WeatherCode,
			}
		}
	}

	cond := Conditions{Label: NowLabel}
	if current == nil {
		return cond
	}
	cond.Temperature = roundHalfUp(current.Temperature)
	cond.WindSpeed = current.WindSpeed
	cond.Humidity = current.Humidity
	cond.WeatherCode = current.WeatherCode
	cond.PrecipitationProbability = current.PrecipitationProbability
	if current.Precipitation != nil {
		cond.Precipitation = current.Precipitation
	} else {
		cond.Precipitation = current.PrecipitationProbability
	}
	return cond
}

// roundHalfUp rounds to the nearest integer with halves going up (-2.5 -> -2).
func roundHalfUp(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(math.Floor(*v + 0.5))
}
