package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"spese-insights/internal/core"
	applog "spese-insights/internal/log"
)

type anomaliesResponse struct {
	UserID    int64              `json:"user_id"`
	Anomalies []core.AnomalyView `json:"anomalies"`
}

type previewResponse struct {
	UserID  int64                `json:"user_id"`
	Results []core.AnomalyResult `json:"results"`
}

type forecastsResponse struct {
	UserID    int64               `json:"user_id"`
	Forecasts []core.ForecastView `json:"forecasts"`
}

type historyResponse struct {
	UserID int64    `json:"user_id"`
	Months []string `json:"months"`
}

type reviewResponse struct {
	ExpenseID          int64                `json:"expense_id"`
	Score              float64              `json:"anomaly_score"`
	Method             core.DetectionMethod `json:"detection_method"`
	IsReviewed         bool                 `json:"is_reviewed"`
	IsConfirmedAnomaly *bool                `json:"is_confirmed_anomaly"`
	ReviewedAt         string               `json:"reviewed_at"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseIDParam(r, "userID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	req, err := ParseDetectQuery(userID, r.URL.Query(), s.defaults)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	found, err := s.insights.DetectAnomalies(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, applog.OpDetect, err)
		return
	}
	if found == nil {
		found = []core.AnomalyView{}
	}
	NewJSONResponse().Body(anomaliesResponse{UserID: userID, Anomalies: found}).Write(w)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseIDParam(r, "userID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	req, err := ParseDetectQuery(userID, r.URL.Query(), s.defaults)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	results, err := s.insights.PreviewAnomalies(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, applog.OpPreview, err)
		return
	}
	if results == nil {
		results = []core.AnomalyResult{}
	}
	NewJSONResponse().Body(previewResponse{UserID: userID, Results: results}).Write(w)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	expenseID, err := ParseIDParam(r, "expenseID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	confirmed, err := DecodeReview(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	a, err := s.insights.ReviewAnomaly(r.Context(), expenseID, confirmed)
	if err != nil {
		writeServiceError(w, r, applog.OpReview, err)
		return
	}
	NewJSONResponse().Body(reviewResponse{
		ExpenseID:          a.ExpenseID,
		Score:              a.Score,
		Method:             a.Method,
		IsReviewed:         a.IsReviewed,
		IsConfirmedAnomaly: a.IsConfirmedAnomaly,
		ReviewedAt:         a.ReviewedAt.UTC().Format(time.RFC3339),
	}).Write(w)
}

type forecastFunc func(r *http.Request, userID int64, months int) ([]core.ForecastView, error)

func (s *Server) serveForecast(w http.ResponseWriter, r *http.Request, run forecastFunc) {
	userID, err := ParseIDParam(r, "userID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	months, err := ParseMonths(r.URL.Query(), s.defaults.Months)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rows, err := run(r, userID, months)
	if err != nil {
		writeServiceError(w, r, applog.OpForecast, err)
		return
	}
	if rows == nil {
		rows = []core.ForecastView{}
	}
	NewJSONResponse().Body(forecastsResponse{UserID: userID, Forecasts: rows}).Write(w)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	s.serveForecast(w, r, func(r *http.Request, userID int64, months int) ([]core.ForecastView, error) {
		return s.insights.Forecast(r.Context(), userID, months)
	})
}

func (s *Server) handleForecastByCategory(w http.ResponseWriter, r *http.Request) {
	s.serveForecast(w, r, func(r *http.Request, userID int64, months int) ([]core.ForecastView, error) {
		return s.insights.ForecastByCategory(r.Context(), userID, months)
	})
}

func (s *Server) handleForecastHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseIDParam(r, "userID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	months, err := s.insights.ForecastHistory(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, applog.OpHistory, err)
		return
	}
	if months == nil {
		months = []string{}
	}
	NewJSONResponse().Body(historyResponse{UserID: userID, Months: months}).Write(w)
}

func (s *Server) handleForecastMonth(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseIDParam(r, "userID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rows, err := s.insights.ForecastsForMonth(r.Context(), userID, chi.URLParam(r, "month"))
	if err != nil {
		writeServiceError(w, r, applog.OpHistory, err)
		return
	}
	if rows == nil {
		rows = []core.ForecastView{}
	}
	NewJSONResponse().Body(forecastsResponse{UserID: userID, Forecasts: rows}).Write(w)
}
