// Package upload talks to the blob store that hosts message
// attachments. The store hands out a presigned URL; we PUT the raw
// bytes there and reference the public URL from the message payload.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"nostrchat/internal/payload"
)

const (
	presignTimeout = 10 * time.Second
	putTimeout     = 60 * time.Second
)

// Client uploads attachments through a presign endpoint.
type Client struct {
	presignURL string
	httpClient *http.Client
}

func NewClient(presignURL string) *Client {
	return &Client{
		presignURL: presignURL,
		httpClient: &http.Client{Timeout: putTimeout},
	}
}

type presignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type presignResponse struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	ObjectKey string `json:"objectKey"`
}

// presign requests an upload slot for the file.
func (c *Client) presign(ctx context.Context, filename, contentType string) (*presignResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, presignTimeout)
	defer cancel()

	body, err := json.Marshal(presignRequest{Filename: filename, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.presignURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presign request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("presign request: unexpected status %d", resp.StatusCode)
	}

	var presigned presignResponse
	if err := json.NewDecoder(resp.Body).Decode(&presigned); err != nil {
		return nil, fmt.Errorf("presign response: %w", err)
	}
	if presigned.UploadURL == "" || presigned.PublicURL == "" {
		return nil, fmt.Errorf("presign response missing urls")
	}
	return &presigned, nil
}

// Upload pushes the file to the blob store and returns an attachment
// referencing its public URL.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data io.Reader) (*payload.Attachment, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	presigned, err := c.presign(ctx, filename, contentType)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.UploadURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(raw))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	return &payload.Attachment{
		URL:  presigned.PublicURL,
		Mime: contentType,
		Kind: payload.InferKind(contentType),
		Name: path.Base(filename),
		Size: int64(len(raw)),
	}, nil
}
