package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/dossier/internal/assistant"
	"github.com/fyrsmithlabs/dossier/internal/casefile"
)

// client is a thin HTTP client for the dossierd API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: query streams can run as long as the
		// model generates.
		http: &http.Client{},
	}
}

func (c *client) url(path string) string {
	return c.baseURL + path
}

func (c *client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("%s", resp.Status)
}

func (c *client) listCases(ctx context.Context) ([]casefile.Case, error) {
	var cases []casefile.Case
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/cases", nil, &cases)
	return cases, err
}

func (c *client) createCase(ctx context.Context, name string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/cases",
		map[string]string{"name": name}, &out)
	return out.Name, err
}

func (c *client) renameCase(ctx context.Context, oldName, newName string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	err := c.doJSON(ctx, http.MethodPost,
		"/api/v1/cases/"+oldName+"/rename",
		map[string]string{"name": newName}, &out)
	return out.Name, err
}

func (c *client) pinCase(ctx context.Context, name string, pinned bool) error {
	return c.doJSON(ctx, http.MethodPost,
		"/api/v1/cases/"+name+"/pin",
		map[string]bool{"pinned": pinned}, nil)
}

func (c *client) deleteCase(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/cases/"+name, nil, nil)
}

// ingestResponse mirrors the daemon's upload reply.
type ingestResponse struct {
	assistant.IngestReport
	Error string `json:"error,omitempty"`
}

// ingest uploads files to a case as one multipart batch.
func (c *client) ingest(ctx context.Context, caseName string, paths []string) (*ingestResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, path := range paths {
		if err := addFilePart(w, path); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/api/v1/cases/"+caseName+"/documents"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}

	var out ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func addFilePart(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// ask streams the answer, invoking onChunk per text increment, and
// returns the source file names from the closing event.
func (c *client) ask(ctx context.Context, caseName, question string, onChunk func(string)) ([]string, error) {
	data, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url("/api/v1/cases/"+caseName+"/query"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apiError(resp)
	}

	return readEventStream(resp.Body, onChunk)
}

// readEventStream consumes SSE events: default events are answer
// increments, the sources event carries a JSON array of file names, and
// an error event aborts.
func readEventStream(r io.Reader, onChunk func(string)) ([]string, error) {
	var (
		sources   []string
		event     string
		dataLines []string
	)

	flush := func() error {
		data := strings.Join(dataLines, "\n")
		switch event {
		case "", "message":
			if len(dataLines) > 0 {
				onChunk(data)
			}
		case "sources":
			if err := json.Unmarshal([]byte(data), &sources); err != nil {
				return fmt.Errorf("bad sources event: %w", err)
			}
		case "error":
			return fmt.Errorf("server error: %s", data)
		}
		event = ""
		dataLines = nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return sources, err
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		return sources, err
	}
	if len(dataLines) > 0 {
		if err := flush(); err != nil {
			return sources, err
		}
	}
	return sources, nil
}

// waitHealthy polls the daemon's health endpoint.
func (c *client) waitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dossierd not reachable at %s: %w", c.baseURL, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
