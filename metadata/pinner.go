package metadata

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

// Pinner uploads artifacts to a Pinata-style pinning service. Every pinned
// artifact is addressed by the content hash the service returns.
type Pinner struct {
	endpoint string
	gateway  string
	apiKey   string
	secret   string
	client   *http.Client
}

// PinResult reports the hashes produced while pinning a listing.
type PinResult struct {
	FileHash     string
	FileURL      string
	MetadataHash string
}

// NewPinner builds a pinner for the given API endpoint and public gateway.
func NewPinner(endpoint, gateway, apiKey, secret string) *Pinner {
	return &Pinner{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		gateway:  strings.TrimRight(strings.TrimSpace(gateway), "/"),
		apiKey:   apiKey,
		secret:   secret,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinFile pins a binary artifact and returns its content hash.
func (p *Pinner) PinFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("metadata: build multipart: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("metadata: copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("metadata: close multipart: %w", err)
	}
	return p.pin(ctx, "/pinning/pinFileToIPFS", writer.FormDataContentType(), &buf)
}

// PinJSON pins a JSON document and returns its content hash.
func (p *Pinner) PinJSON(ctx context.Context, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("metadata: marshal document: %w", err)
	}
	return p.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(body))
}

// PinListing pins a listing image followed by its metadata document. The
// image's gateway URL is injected into the document before it is pinned, so
// the on-chain hash addresses a self-contained record — the same two-step
// flow the original upload path performs.
func (p *Pinner) PinListing(ctx context.Context, imageName string, image io.Reader, doc Metadata) (*PinResult, error) {
	fileHash, err := p.PinFile(ctx, imageName, image)
	if err != nil {
		return nil, err
	}
	fileURL := fmt.Sprintf("%s/ipfs/%s", p.gateway, fileHash)
	doc.ImageURL = fileURL
	metaHash, err := p.PinJSON(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &PinResult{FileHash: fileHash, FileURL: fileURL, MetadataHash: metaHash}, nil
}

func (p *Pinner) pin(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	if p.endpoint == "" {
		return "", fmt.Errorf("metadata: pinning endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, body)
	if err != nil {
		return "", fmt.Errorf("metadata: build pin request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata: pin request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("metadata: pin rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var parsed pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("metadata: decode pin response: %w", err)
	}
	if parsed.IpfsHash == "" {
		return "", fmt.Errorf("metadata: pin response missing hash")
	}
	return parsed.IpfsHash, nil
}
