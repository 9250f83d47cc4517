package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	maxDocumentSize = 1 << 20 // 1 MiB
	fetchTimeout    = 10 * time.Second
)

// Fetcher resolves content hashes to metadata documents through an HTTP
// gateway. Failures never propagate: a bad hash, an unreachable gateway, or
// a malformed document all degrade to a nil result with a logged warning,
// and the caller substitutes placeholder fields.
type Fetcher struct {
	gateway string
	client  *http.Client
	logger  *slog.Logger
}

// NewFetcher builds a fetcher for the given gateway base URL.
func NewFetcher(gateway string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		gateway: strings.TrimRight(strings.TrimSpace(gateway), "/"),
		client:  &http.Client{Timeout: fetchTimeout},
		logger:  logger,
	}
}

// Fetch resolves one content hash. Each call is independent: no cache, no
// retry, and two calls with the same hash return field-for-field identical
// documents unless the stored document itself changed.
func (f *Fetcher) Fetch(ctx context.Context, hash string) *Metadata {
	if !ValidHash(hash) {
		f.logger.Warn("metadata: skipping invalid content hash", "hash", hash)
		return nil
	}
	if f.gateway == "" {
		f.logger.Warn("metadata: gateway not configured")
		return nil
	}
	url := fmt.Sprintf("%s/ipfs/%s", f.gateway, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Warn("metadata: build request", "hash", hash, "error", err)
		return nil
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("metadata: gateway fetch failed", "hash", hash, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("metadata: gateway returned non-success", "hash", hash, "status", resp.StatusCode)
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		f.logger.Warn("metadata: read document", "hash", hash, "error", err)
		return nil
	}
	var doc Metadata
	if err := json.Unmarshal(body, &doc); err != nil {
		f.logger.Warn("metadata: parse document", "hash", hash, "error", err)
		return nil
	}
	return &doc
}

// ValidHash reports whether a content hash is worth a network round trip.
// Empty strings and the "undefined"-prefixed values the original front end
// produced for unset fields are rejected outright.
func ValidHash(hash string) bool {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "undefined") {
		return false
	}
	if strings.ContainsAny(trimmed, " /?#") {
		return false
	}
	return len(trimmed) >= 32
}
