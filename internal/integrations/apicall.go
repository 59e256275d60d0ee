package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gurubase/gurubase-go/internal/models"
	"github.com/sirupsen/logrus"
)

// apiClient is the single outbound HTTP funnel shared by all vendor
// strategies. It never retries; any non-2xx response becomes an
// IntegrationError carrying the vendor's body. Callers decide what is
// fatal and what is recoverable.
type apiClient struct {
	vendor     models.IntegrationType
	httpClient *http.Client
	logger     *logrus.Logger
}

func newAPIClient(vendor models.IntegrationType, logger *logrus.Logger) *apiClient {
	return &apiClient{
		vendor: vendor,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// callJSON sends a JSON request and decodes a JSON response into result.
func (a *apiClient) callJSON(ctx context.Context, method, endpoint string, headers map[string]string, payload interface{}, result interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return a.do(ctx, method, endpoint, headers, body, result)
}

// callForm sends a form-encoded request, the OAuth token endpoints all
// expect this encoding.
func (a *apiClient) callForm(ctx context.Context, method, endpoint string, headers map[string]string, form url.Values, result interface{}) error {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/x-www-form-urlencoded"
	return a.do(ctx, method, endpoint, headers, strings.NewReader(form.Encode()), result)
}

func (a *apiClient) do(ctx context.Context, method, endpoint string, headers map[string]string, body io.Reader, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &IntegrationError{Vendor: a.vendor, Msg: err.Error()}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &IntegrationError{Vendor: a.vendor, StatusCode: resp.StatusCode, Msg: err.Error()}
	}

	a.logger.WithFields(logrus.Fields{
		"vendor":      a.vendor,
		"method":      method,
		"url":         endpoint,
		"status_code": resp.StatusCode,
	}).Debug("Vendor API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &IntegrationError{
			Vendor:     a.vendor,
			StatusCode: resp.StatusCode,
			Msg:        string(responseBody),
		}
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", a.vendor, err)
		}
	}

	return nil
}
