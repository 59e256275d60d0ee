package answers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Generator produces answers for a guru. The HTTP client below talks to
// the answer pipeline service; tests substitute their own implementation.
type Generator interface {
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
	Generate(ctx context.Context, req GenerationRequest) (*Generation, error)
	Ping(ctx context.Context) error
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 600 * time.Second, // generations can run long
		},
		logger: logger,
	}
}

// Summarize validates and reformulates a raw question. Invalid questions
// come back with ValidQuestion=false rather than an error.
func (c *Client) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	var response Summary
	err := c.makeRequest(ctx, "POST", "/summary", req, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Ping checks the pipeline is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.makeRequest(ctx, "GET", "/health", nil, nil)
}

// Generate opens an answer stream. The response body is a newline
// delimited JSON event stream: chunk events carry content, the final
// done event carries trust score and references. Rejections arrive as a
// done event with a msg and no content.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*Generation, error) {
	url := c.baseURL + "/answer"

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"guru_type": req.GuruType,
		"source":    req.Source,
	}).Debug("Opening answer stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	chunks := make(chan string)
	done := make(chan struct{})
	gen := &Generation{chunks: chunks, done: done}
	gen.result = &generationResult{}

	go c.readStream(resp.Body, chunks, done, gen.result)

	return gen, nil
}

func (c *Client) readStream(body io.ReadCloser, chunks chan<- string, done chan<- struct{}, result *generationResult) {
	defer close(done)
	defer close(chunks)
	defer body.Close()

	sawContent := false
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event streamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			result.err = fmt.Errorf("failed to decode stream event: %w", err)
			return
		}
		if event.Done {
			if event.Msg != "" && !sawContent {
				result.err = classifyRejection(event.Msg)
				return
			}
			meta := event.Metadata
			result.meta = &meta
			return
		}
		if event.Chunk != "" {
			sawContent = true
			chunks <- event.Chunk
		}
	}
	if err := scanner.Err(); err != nil {
		result.err = fmt.Errorf("stream read failed: %w", err)
		return
	}
	result.err = fmt.Errorf("stream ended without a done event")
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := c.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"method":      method,
		"url":         url,
	}).Debug("Answer pipeline response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
