package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"spese-insights/internal/anomaly"
	"spese-insights/internal/core"
)

const maxBodyBytes = 1 << 16

// ParseIDParam reads a positive integer path parameter.
func ParseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func parseOptionalDate(query url.Values, key string) (*core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", key, v)
	}
	return &d, nil
}

// ParseDetectQuery builds a detection request from ?threshold=&from=&to=&method=.
// Missing values take the server defaults.
func ParseDetectQuery(userID int64, query url.Values, defaults Defaults) (anomaly.DetectRequest, error) {
	req := anomaly.DetectRequest{
		UserID:    userID,
		Threshold: defaults.Threshold,
		Method:    defaults.Method,
	}
	if v := strings.TrimSpace(query.Get("threshold")); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: %q", core.ErrInvalidThreshold, v)
		}
		if err := anomaly.ValidateThreshold(t); err != nil {
			return req, err
		}
		req.Threshold = t
	}
	if v := strings.TrimSpace(query.Get("method")); v != "" {
		req.Method = core.DetectionMethod(v)
	}
	var err error
	if req.From, err = parseOptionalDate(query, "from"); err != nil {
		return req, err
	}
	if req.To, err = parseOptionalDate(query, "to"); err != nil {
		return req, err
	}
	return req, nil
}

// ParseMonths reads ?months=, falling back to def.
func ParseMonths(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidHorizon, v)
	}
	return n, nil
}

type reviewRequest struct {
	Confirmed *bool `json:"confirmed"`
}

// DecodeReview reads {"confirmed": bool}; the field is required.
func DecodeReview(r *http.Request) (bool, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	var body reviewRequest
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return false, errors.New("request body is empty")
		}
		return false, fmt.Errorf("invalid request body: %w", err)
	}
	if body.Confirmed == nil {
		return false, errors.New(`missing "confirmed" field`)
	}
	return *body.Confirmed, nil
}
