// Package models defines the catalog's persisted data shapes. Records are
// stored as JSON values in the kv store; field tags match the wire format the
// renderer consumes.
package models

// Episode is one playable entry of a series.
type Episode struct {
	Season string `json:"season,omitempty"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

// Link kinds. Direct links go through redirect resolution; embed links are
// handed to the player untouched.
const (
	LinkDirect = "direct"
	LinkEmbed  = "embed"
)

// Categories form a closed set; Save rejects anything else.
var Categories = []string{
	"Movies", "Series", "4K Movies", "Animation",
	"Jav", "All Uncensored", "Myanmar and Asian", "4K Porns",
}

// ValidCategory reports whether cat belongs to the closed category set.
func ValidCategory(cat string) bool {
	for _, c := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// Movie is the primary catalog record and the single source of truth; every
// index entry is derived from it. CreatedAt is a millisecond timestamp that
// doubles as the recency-ordering key, so bumping it moves the record to the
// top of the chronological index.
type Movie struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PosterURL    string    `json:"posterUrl"`
	CoverURL     string    `json:"coverUrl"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Tags         string    `json:"tags"`
	Year         string    `json:"year"`
	FileSize     string    `json:"fileSize,omitempty"`
	Duration     string    `json:"duration,omitempty"`
	StreamURL    string    `json:"streamUrl"`
	StreamURL2   string    `json:"streamUrl2,omitempty"`
	Episodes     []Episode `json:"episodes,omitempty"`
	LinkType     string    `json:"linkType"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
	DownloadURL2 string    `json:"downloadUrl2,omitempty"`
	// Price 0 means access is gated by subscription; >0 means a one-time
	// coin purchase.
	Price     int64 `json:"price,omitempty"`
	CreatedAt int64 `json:"createdAt"`
}

// Summary projects the record down to what list pages need.
func (m *Movie) Summary() MovieSummary {
	return MovieSummary{
		ID:        m.ID,
		Title:     m.Title,
		PosterURL: m.PosterURL,
		CoverURL:  m.CoverURL,
		Category:  m.Category,
		CreatedAt: m.CreatedAt,
	}
}

// MovieSummary is the derived projection stored in the chronological and
// category indexes. Regenerated on every Save, never hand-edited.
type MovieSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PosterURL string `json:"posterUrl"`
	CoverURL  string `json:"coverUrl"`
	Category  string `json:"category"`
	CreatedAt int64  `json:"createdAt"`
}
