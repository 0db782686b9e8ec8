// Package api uploads finished session exports to a recording archive.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rlpredict/rlpredict/pkg/core"
)

// SecretHeader carries the archive's API key.
const SecretHeader = "X-Archive-Secret"

// Client talks to the recording archive.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the archive is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload streams an exported session file with its metadata as a multipart form.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.ExportMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		errCh <- writeForm(pw, writer, file, filepath.Base(filePath), meta)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sessions", pr)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(SecretHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

func writeForm(pw *io.PipeWriter, writer *multipart.Writer, file io.Reader, name string, meta core.ExportMetadata) error {
	fields := [][2]string{
		{"filename", name},
		{"mode", meta.Mode},
		{"startTime", meta.StartTime.UTC().Format(time.RFC3339)},
		{"frames", strconv.FormatUint(meta.Frames, 10)},
		{"predictions", strconv.Itoa(meta.Predictions)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		pw.CloseWithError(err)
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		pw.CloseWithError(err)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		pw.CloseWithError(err)
		return fmt.Errorf("failed to finish form: %w", err)
	}
	return pw.Close()
}
