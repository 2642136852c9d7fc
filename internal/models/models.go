package models

// Vehicle is the sole persisted entity: one listing per normalized
// registration. Images holds relative URLs under /media/{reg}/ recorded at
// creation time and never mutated afterwards.
type Vehicle struct {
	Reg          string   `json:"reg"`
	Brand        string   `json:"brand"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Price        float64  `json:"price"`
	Kms          int64    `json:"kms"`
	Fuel         string   `json:"fuel"`
	Transmission string   `json:"transmission"`
	Owner        string   `json:"owner"`
	Description  string   `json:"description"`
	Images       []string `json:"images"`
	IsSold       bool     `json:"is_sold"`
}

// CloneImages returns a copy of the image URL list so callers cannot
// mutate stored state through the shared slice. The copy is never nil, so
// a vehicle without images serializes as an empty list.
func (v Vehicle) CloneImages() []string {
	out := make([]string, len(v.Images))
	copy(out, v.Images)
	return out
}
