package models

// AssetKind is the media type of a detected asset URL.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// AssetReference is a media URL found in a result row plus the metrics
// from that same row that are relevant to the question.
type AssetReference struct {
	URL            string             `json:"url"`
	Kind           AssetKind          `json:"type"`
	Column         string             `json:"column"`
	Title          string             `json:"title,omitempty"`
	Metrics        map[string]float64 `json:"metrics"`
	SourceRowIndex int                `json:"sourceRowIndex"`
}
