package metadata

// Metadata is the off-chain listing document pinned alongside each property.
// On-chain numeric and identity fields always take precedence; this document
// only ever supplies the descriptive fields below.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Bedrooms    int      `json:"bedrooms,omitempty"`
	Bathrooms   int      `json:"bathrooms,omitempty"`
	Area        int      `json:"area,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
}

// Images returns the document's image URLs, falling back to the single
// imageUrl field when no list is present.
func (m *Metadata) Images() []string {
	if m == nil {
		return nil
	}
	if len(m.ImageURLs) > 0 {
		return m.ImageURLs
	}
	if m.ImageURL != "" {
		return []string{m.ImageURL}
	}
	return nil
}
