package timeseries

import (
	"github.com/kjstillabower/nostradamus/internal/models"
)

// AttachPrediction aligns a prediction run with an existing series by minute key.
// Matching slots get prediction, prediction_wind and prediction_hum from the run
// (each may be absent); slots without a match have their prediction fields
// cleared, since a run replaces the previous one. Predictions whose key has no
// slot are discarded and counted in Report.Unmatched. The series never gains
// keys and history, forecast and unified_temp are never touched.
func AttachPrediction(series Series, predictions []models.PredictionRecord) (Series, Report) {
	var report Report
	byKey := make(map[TimestampKey]models.PredictionRecord, len(predictions))
	for i, p := range predictions {
		key, err := Normalize(p.Time)
		if err != nil {
			report.skip(SourcePrediction, i, p.Time, err)
			continue
		}
		byKey[key] = p
	}

	matched := make(map[TimestampKey]struct{}, len(byKey))
	out := make(Series, len(series))
	for i, rec := range series {
		rec.Prediction, rec.PredictionWind, rec.PredictionHum = nil, nil, nil
		if key, err := Normalize(rec.Time); err == nil {
			if p, ok := byKey[key]; ok {
				applyPrediction(&rec, p)
				matched[key] = struct{}{}
			}
		}
		out[i] = rec
	}
	report.Unmatched = len(byKey) - len(matched)
	return out, report
}
