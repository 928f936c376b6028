package models

// Consents represents the user's privacy consent states.
type Consents struct {
	Analytics   bool      `json:"analytics"`
	Marketing   bool      `json:"marketing"`
	DataSharing bool      `json:"dataSharing"`
	UpdatedAt   Timestamp `json:"updatedAt"`
}

// ConsentsInput is a partial consents update. Omitted fields are left unchanged.
type ConsentsInput struct {
	Analytics   *bool `json:"analytics,omitempty"`
	Marketing   *bool `json:"marketing,omitempty"`
	DataSharing *bool `json:"dataSharing,omitempty"`
}
