package models

// Hospital is the requesting facility behind an alert. Registration is owned
// by the hospital-directory collaborator; this core only reads it.
type Hospital struct {
	BaseModel

	Name      string   `gorm:"type:varchar(255);not null" json:"name"`
	Location  string   `gorm:"type:text" json:"location"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	ContactNumber string `gorm:"type:varchar(32)" json:"contact_number"`
	Email         string `gorm:"type:varchar(255)" json:"email"`
}

// HasCoordinates reports whether the hospital carries a usable coordinate pair.
func (h *Hospital) HasCoordinates() bool {
	return h.Latitude != nil && h.Longitude != nil
}
