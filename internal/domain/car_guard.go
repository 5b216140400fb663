package domain

// CarGuard is a tip recipient, identified by the QR code they display.
type CarGuard struct {
	ID          string   `gorm:"primaryKey;size:64" json:"id"`
	Name        string   `gorm:"size:128;not null" json:"name"`
	QRCode      string   `gorm:"uniqueIndex;size:128;not null" json:"qr_code"`
	Location    string   `gorm:"size:255" json:"location"`
	PhoneNumber string   `gorm:"size:20" json:"phone_number,omitempty"`
	Verified    bool     `gorm:"not null;default:false" json:"verified"`
	Rating      *float64 `json:"rating,omitempty"`
}
