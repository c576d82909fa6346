package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// remoteRecognizer sends the binarized challenge to a human-backed
// image-to-text service and polls for the transcription. The text it
// returns goes through the same extraction and correction as local OCR.
type remoteRecognizer struct {
	service      string
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// newRemoteRecognizer creates a recognizer for the given service name.
// Supported services are "2captcha" and "anticaptcha".
func newRemoteRecognizer(service, apiKey string) (*remoteRecognizer, error) {
	r := &remoteRecognizer{
		service:      service,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: 2 * time.Second,
		maxPolls:     30,
	}

	switch service {
	case "2captcha":
		r.baseURL = "https://2captcha.com"
	case "anticaptcha":
		r.baseURL = "https://api.anti-captcha.com"
	default:
		return nil, fmt.Errorf("unsupported captcha service: %q (supported: 2captcha, anticaptcha)", service)
	}
	return r, nil
}

func (r *remoteRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	body := base64.StdEncoding.EncodeToString(data)

	switch r.service {
	case "2captcha":
		return r.recognize2Captcha(ctx, body)
	case "anticaptcha":
		return r.recognizeAntiCaptcha(ctx, body)
	default:
		return "", fmt.Errorf("unsupported captcha service: %q", r.service)
	}
}

// recognize2Captcha implements the 2captcha normal-captcha flow.
// Submit: POST /in.php with method=base64, body, json=1
// Poll:   GET /res.php?action=get&id=<id>&key=<key>&json=1
func (r *remoteRecognizer) recognize2Captcha(ctx context.Context, body string) (string, error) {
	form := url.Values{
		"key":    {r.apiKey},
		"method": {"base64"},
		"body":   {body},
		"json":   {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("2captcha: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var submitResp struct {
		Status  int    `json:"status"`
		Request string `json:"request"`
	}
	if err := r.doJSON(req, &submitResp); err != nil {
		return "", fmt.Errorf("2captcha: submit: %w", err)
	}
	if submitResp.Status != 1 {
		return "", fmt.Errorf("2captcha: submit failed: %s", submitResp.Request)
	}

	pollURL := fmt.Sprintf("%s/res.php?key=%s&action=get&id=%s&json=1",
		r.baseURL, url.QueryEscape(r.apiKey), url.QueryEscape(submitResp.Request))

	for i := 0; i < r.maxPolls; i++ {
		if err := sleepContext(ctx, r.pollInterval); err != nil {
			return "", err
		}

		pollReq, err := http.NewRequestWithContext(ctx, "GET", pollURL, nil)
		if err != nil {
			return "", fmt.Errorf("2captcha: build poll request: %w", err)
		}
		var result struct {
			Status  int    `json:"status"`
			Request string `json:"request"`
		}
		if err := r.doJSON(pollReq, &result); err != nil {
			return "", fmt.Errorf("2captcha: poll: %w", err)
		}
		if result.Status == 1 {
			return result.Request, nil
		}
		if result.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("2captcha: recognition failed: %s", result.Request)
		}
	}

	return "", fmt.Errorf("2captcha: timed out after %d polls", r.maxPolls)
}

// recognizeAntiCaptcha implements the anti-captcha ImageToTextTask flow.
func (r *remoteRecognizer) recognizeAntiCaptcha(ctx context.Context, body string) (string, error) {
	createPayload := map[string]interface{}{
		"clientKey": r.apiKey,
		"task": map[string]interface{}{
			"type": "ImageToTextTask",
			"body": body,
		},
	}
	req, err := r.newJSONRequest(ctx, "/createTask", createPayload)
	if err != nil {
		return "", fmt.Errorf("anticaptcha: %w", err)
	}

	var createResp struct {
		ErrorID          int    `json:"errorId"`
		ErrorCode        string `json:"errorCode"`
		ErrorDescription string `json:"errorDescription"`
		TaskID           int    `json:"taskId"`
	}
	if err := r.doJSON(req, &createResp); err != nil {
		return "", fmt.Errorf("anticaptcha: create: %w", err)
	}
	if createResp.ErrorID != 0 {
		return "", fmt.Errorf("anticaptcha: create failed: %s (%s)", createResp.ErrorCode, createResp.ErrorDescription)
	}

	for i := 0; i < r.maxPolls; i++ {
		if err := sleepContext(ctx, r.pollInterval); err != nil {
			return "", err
		}

		pollReq, err := r.newJSONRequest(ctx, "/getTaskResult", map[string]interface{}{
			"clientKey": r.apiKey,
			"taskId":    createResp.TaskID,
		})
		if err != nil {
			return "", fmt.Errorf("anticaptcha: %w", err)
		}

		var result struct {
			ErrorID  int    `json:"errorId"`
			Status   string `json:"status"`
			Solution struct {
				Text string `json:"text"`
			} `json:"solution"`
			ErrorCode        string `json:"errorCode"`
			ErrorDescription string `json:"errorDescription"`
		}
		if err := r.doJSON(pollReq, &result); err != nil {
			return "", fmt.Errorf("anticaptcha: poll: %w", err)
		}
		if result.ErrorID != 0 {
			return "", fmt.Errorf("anticaptcha: recognition failed: %s (%s)", result.ErrorCode, result.ErrorDescription)
		}
		if result.Status == "ready" {
			return result.Solution.Text, nil
		}
		// status == "processing", keep polling
	}

	return "", fmt.Errorf("anticaptcha: timed out after %d polls", r.maxPolls)
}

func (r *remoteRecognizer) newJSONRequest(ctx context.Context, path string, payload interface{}) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (r *remoteRecognizer) doJSON(req *http.Request, out interface{}) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
