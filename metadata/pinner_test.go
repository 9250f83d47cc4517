package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newPinServer(t *testing.T, fileHash, jsonHash string, captured *Metadata) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("pinata_api_key") == "" {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/pinning/pinFileToIPFS":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(pinResponse{IpfsHash: fileHash})
		case "/pinning/pinJSONToIPFS":
			body, _ := io.ReadAll(r.Body)
			if captured != nil {
				_ = json.Unmarshal(body, captured)
			}
			_ = json.NewEncoder(w).Encode(pinResponse{IpfsHash: jsonHash})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestPinListingInjectsImageURL(t *testing.T) {
	var pinnedDoc Metadata
	server := newPinServer(t, "QmFileHash", "QmMetaHash", &pinnedDoc)
	defer server.Close()

	pinner := NewPinner(server.URL, "https://gw.example", "key", "secret")
	result, err := pinner.PinListing(context.Background(), "house.jpg", strings.NewReader("jpegdata"), Metadata{
		Title:       "Seaside Cottage",
		Description: "Two bedrooms by the shore.",
		Amenities:   []string{"Parking"},
	})
	if err != nil {
		t.Fatalf("PinListing: %v", err)
	}
	if result.FileHash != "QmFileHash" || result.MetadataHash != "QmMetaHash" {
		t.Fatalf("result = %+v", result)
	}
	if result.FileURL != "https://gw.example/ipfs/QmFileHash" {
		t.Fatalf("FileURL = %q", result.FileURL)
	}
	if pinnedDoc.ImageURL != result.FileURL {
		t.Fatalf("pinned document imageUrl = %q, want %q", pinnedDoc.ImageURL, result.FileURL)
	}
	if pinnedDoc.Title != "Seaside Cottage" {
		t.Fatalf("pinned document title = %q", pinnedDoc.Title)
	}
}

func TestPinFileRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	pinner := NewPinner(server.URL, "https://gw.example", "key", "secret")
	if _, err := pinner.PinFile(context.Background(), "a.jpg", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for rejected pin")
	}
}

func TestPinJSONMissingHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	pinner := NewPinner(server.URL, "https://gw.example", "key", "secret")
	if _, err := pinner.PinJSON(context.Background(), map[string]string{"a": "b"}); err == nil {
		t.Fatal("expected error when response lacks hash")
	}
}
