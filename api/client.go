// Package api talks to the server's HTTP side: braille table listing,
// one-shot translation, back-translation and the health probe. The websocket
// protocol lives in package stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Table describes one braille translation table offered by the server.
type Table struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Grade       string `json:"grade,omitempty"`
}

// Translation is the response of /api/translate.
type Translation struct {
	OriginalText string `json:"original_text"`
	Braille      string `json:"braille"`
	TableUsed    string `json:"table_used"`
	Success      bool   `json:"success"`
}

// BackTranslation is the response of /api/back-translate.
type BackTranslation struct {
	OriginalBraille string `json:"original_braille"`
	Text            string `json:"text"`
	TableUsed       string `json:"table_used"`
	Success         bool   `json:"success"`
}

// Health is the response of /api/health.
type Health struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	LiblouisVersion string `json:"liblouis_version"`
	ASRStatus       string `json:"asr_status"`
	ASRModel        string `json:"asr_model,omitempty"`
	ASRDevice       string `json:"asr_device,omitempty"`
}

// Client is a thin typed wrapper over the server's HTTP endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Tables lists the available braille translation tables.
func (c *Client) Tables(ctx context.Context) ([]Table, error) {
	var tables []Table
	if err := c.get(ctx, "/api/tables", &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

// Translate converts text to braille with the given table.
func (c *Client) Translate(ctx context.Context, text, table string) (Translation, error) {
	req := struct {
		Text  string `json:"text"`
		Table string `json:"table"`
	}{Text: text, Table: table}
	var resp Translation
	if err := c.post(ctx, "/api/translate", req, &resp); err != nil {
		return Translation{}, err
	}
	return resp, nil
}

// BackTranslate converts braille back to text, for braille keyboard input.
func (c *Client) BackTranslate(ctx context.Context, braille, table string) (BackTranslation, error) {
	req := struct {
		Braille string `json:"braille"`
		Table   string `json:"table"`
	}{Braille: braille, Table: table}
	var resp BackTranslation
	if err := c.post(ctx, "/api/back-translate", req, &resp); err != nil {
		return BackTranslation{}, err
	}
	return resp, nil
}

// Health probes the server before a session starts.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	if err := c.get(ctx, "/api/health", &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, bytes.TrimSpace(detail))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
