package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Response paths inside the generateContent envelope
const (
	textPath        = "candidates.0.content.parts.0.text"
	finishPath      = "candidates.0.finishReason"
	blockReasonPath = "promptFeedback.blockReason"
)

// APIClient handles communication with the generateContent endpoint
type APIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *resty.Client
	logger     intel.Logger
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiKey, model string, timeout time.Duration, logger intel.Logger) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: resty.New().SetTimeout(timeout),
		logger:     logger,
	}
}

// GenerateReport sends the prompt and returns the decoded report
func (c *APIClient) GenerateReport(ctx context.Context, req intel.Request) (*intel.Report, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(req)}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema(),
		},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", c.apiKey).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		// Success - parse response below
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded (HTTP 429): too many requests")
	default:
		var apiErr APIError
		if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Detail.Message != "" {
			return nil, fmt.Errorf("provider error (HTTP %d): %s", resp.StatusCode(), apiErr.Error())
		}
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode())
	}

	envelope := resp.Body()
	if reason := gjson.GetBytes(envelope, blockReasonPath); reason.Exists() {
		return nil, fmt.Errorf("prompt blocked: %s", reason.String())
	}

	text := gjson.GetBytes(envelope, textPath)
	if !text.Exists() || strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("response missing report text (finish reason %q)", gjson.GetBytes(envelope, finishPath).String())
	}

	report, err := decodeReport(text.String())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Successfully generated report",
		"model", c.model,
		"riskLevel", string(report.RiskLevel),
		"cityName", report.CityName)

	return report, nil
}
