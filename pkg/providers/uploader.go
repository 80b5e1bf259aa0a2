package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPUploader posts blobs to an image-host endpoint as a multipart form
// and returns the hosted URL from the JSON response. The form follows the
// common image-host shape: the blob under "source", the credential under
// "key".
type HTTPUploader struct {
	uploadURL string
	apiKey    string
	timeout   time.Duration
	http      *http.Client
}

// NewHTTPUploader builds an uploader for the given endpoint. httpClient is
// the shared pooled client; nil builds a private one.
func NewHTTPUploader(uploadURL, apiKey string, timeout time.Duration, httpClient *http.Client) *HTTPUploader {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPUploader{
		uploadURL: uploadURL,
		apiKey:    apiKey,
		timeout:   timeout,
		http:      httpClient,
	}
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if u.apiKey != "" {
		if err := form.WriteField("key", u.apiKey); err != nil {
			return "", err
		}
	}
	part, err := form.CreateFormFile("source", "image."+extensionFor(mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image host returned %d: %s", resp.StatusCode, summarize(string(raw)))
	}

	// Hosts nest the URL differently; accept both common shapes.
	var decoded struct {
		URL   string `json:"url"`
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if decoded.Image.URL != "" {
		return decoded.Image.URL, nil
	}
	if decoded.URL != "" {
		return decoded.URL, nil
	}
	return "", fmt.Errorf("upload response carried no url")
}

// extensionFor maps a mime type to a file extension for the form filename.
func extensionFor(mimeType string) string {
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "png"
}
