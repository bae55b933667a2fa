// Package predict talks to the external risk prediction service and keeps a
// log of every prediction in ai_predictions.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrServiceFailure is the only error callers see for a misbehaving prediction service.
var ErrServiceFailure = errors.New("the prediction service could not process the request, please try again later")

const DefaultTimeout = 60 * time.Second

// Input is the feature vector sent to /predict_api.
type Input struct {
	Progress   float64 `json:"progress" validate:"gte=0,lte=100"`
	Budget     float64 `json:"budget" validate:"gte=0,lte=100"`
	Delay      float64 `json:"delay" validate:"gte=0"`
	Engagement float64 `json:"engagement" validate:"gte=0,lte=100"`
	Success    float64 `json:"success" validate:"gte=0,lte=100"`
}

type Prediction struct {
	PredictedRisk string  `json:"predicted_risk"`
	Confidence    float64 `json:"confidence"`
}

// FileResult is the /predict_file_api response.
type FileResult struct {
	Status      string                   `json:"status"`
	Predictions []map[string]interface{} `json:"predictions"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Predict posts one feature vector and returns the service's risk level.
func (c *Client) Predict(ctx context.Context, in Input) (*Prediction, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict_api", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out struct {
		PredictedRisk *string  `json:"predicted_risk"`
		Confidence    *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrServiceFailure, err)
	}
	if out.PredictedRisk == nil || out.Confidence == nil {
		return nil, fmt.Errorf("%w: response is missing predicted_risk or confidence", ErrServiceFailure)
	}
	level, ok := ParseRisk(*out.PredictedRisk)
	if !ok {
		return nil, fmt.Errorf("%w: unknown risk level %q", ErrServiceFailure, *out.PredictedRisk)
	}
	return &Prediction{PredictedRisk: level, Confidence: *out.Confidence}, nil
}

// PredictFile forwards a spreadsheet of feature rows as multipart field "file".
func (c *Client) PredictFile(ctx context.Context, filename string, r io.Reader) (*FileResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict_file_api", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var out FileResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrServiceFailure, err)
	}
	if out.Status == "" || out.Predictions == nil {
		return nil, fmt.Errorf("%w: response is missing status or predictions", ErrServiceFailure)
	}
	return &out, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFailure, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrServiceFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrServiceFailure, resp.StatusCode)
	}
	return body, nil
}
