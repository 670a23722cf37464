package domain

import (
	"strings"
	"time"
)

// AllProvinces is the sentinel province value meaning "no province filter".
const AllProvinces = "All Provinces"

// Provinces lists the Indonesian provinces offered by the province filter.
var Provinces = []string{
	AllProvinces,
	"Aceh", "Bali", "Banten", "Bengkulu", "DI Yogyakarta", "DKI Jakarta",
	"Gorontalo", "Jambi", "Jawa Barat", "Jawa Tengah", "Jawa Timur",
	"Kalimantan Barat", "Kalimantan Selatan", "Kalimantan Tengah",
	"Kalimantan Timur", "Kalimantan Utara", "Kepulauan Bangka Belitung",
	"Kepulauan Riau", "Lampung", "Maluku", "Maluku Utara",
	"Nusa Tenggara Barat", "Nusa Tenggara Timur", "Papua", "Papua Barat",
	"Papua Barat Daya", "Papua Pegunungan", "Papua Selatan", "Papua Tengah",
	"Riau", "Sulawesi Barat", "Sulawesi Selatan", "Sulawesi Tengah",
	"Sulawesi Tenggara", "Sulawesi Utara", "Sumatera Barat",
	"Sumatera Selatan", "Sumatera Utara",
}

// Restaurant is a halal-certified (or pending) restaurant listing.
type Restaurant struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	Province         string     `json:"province"`
	Cuisine          string     `json:"cuisine"`
	Phone            string     `json:"phone,omitempty"`
	OpenHours        string     `json:"open_hours,omitempty"`
	Description      string     `json:"description,omitempty"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	CertificationID  string     `json:"certification_id,omitempty"`
	IssuingAuthority string     `json:"issuing_authority,omitempty"`
	CertifiedDate    *time.Time `json:"certified_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	Verified         bool       `json:"verified"`
	TxHash           string     `json:"tx_hash,omitempty"`
	BlockNumber      string     `json:"block_number,omitempty"`
	Rating           float64    `json:"rating"`
	ReviewCount      int        `json:"review_count"`
	QRScanCount      int        `json:"qr_scan_count"`
	OwnerID          string     `json:"owner_id,omitempty"`
	RecentScans      []QRScan   `json:"recent_scans,omitempty"`
	Distance         *float64   `json:"distance,omitempty"` // computed field
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MarkerID identifies the restaurant's map marker.
func (r Restaurant) MarkerID() string { return r.ID }

// Coordinate returns the restaurant's location.
func (r Restaurant) Coordinate() GeoPoint {
	return GeoPoint{Lat: r.Latitude, Lng: r.Longitude}
}

// CertificationActive reports whether the restaurant is verified and its
// certificate has not expired at now.
func (r Restaurant) CertificationActive(now time.Time) bool {
	if !r.Verified {
		return false
	}
	return r.ExpiryDate == nil || now.Before(*r.ExpiryDate)
}

// RestaurantUpdate carries a partial update; nil fields are left untouched.
type RestaurantUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Province    *string  `json:"province,omitempty"`
	Cuisine     *string  `json:"cuisine,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	OpenHours   *string  `json:"open_hours,omitempty"`
	Description *string  `json:"description,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Verified    *bool    `json:"verified,omitempty"`
}

// Apply copies the set fields of u onto r.
func (u RestaurantUpdate) Apply(r *Restaurant) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Address != nil {
		r.Address = *u.Address
	}
	if u.Province != nil {
		r.Province = *u.Province
	}
	if u.Cuisine != nil {
		r.Cuisine = *u.Cuisine
	}
	if u.Phone != nil {
		r.Phone = *u.Phone
	}
	if u.OpenHours != nil {
		r.OpenHours = *u.OpenHours
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Latitude != nil {
		r.Latitude = *u.Latitude
	}
	if u.Longitude != nil {
		r.Longitude = *u.Longitude
	}
	if u.Verified != nil {
		r.Verified = *u.Verified
	}
}

// QRScan records a scan of a restaurant's certification QR code.
type QRScan struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Location     string    `json:"location,omitempty"`
	Device       string    `json:"device,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Stats summarises the directory for the map legend and dashboard.
type Stats struct {
	Restaurants int `json:"restaurants"`
	Verified    int `json:"verified"`
	Pending     int `json:"pending"`
	Scans       int `json:"scans"`
}

// Filter selects restaurants. Zero values mean "no constraint".
type Filter struct {
	Province     string
	Search       string
	Verified     *bool
	Near         *GeoPoint
	RadiusMeters float64
	Bounds       *Bounds
	Offset       int
	Limit        int
}

// Normalized trims the text fields and drops the "All Provinces" sentinel.
func (f Filter) Normalized() Filter {
	f.Province = strings.TrimSpace(f.Province)
	if strings.EqualFold(f.Province, AllProvinces) {
		f.Province = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Matches applies the text, province, verification and bounds constraints
// to r. Radius constraints are applied by the caller, which owns distance
// computation.
func (f Filter) Matches(r Restaurant) bool {
	if f.Province != "" && r.Province != f.Province {
		return false
	}
	if f.Verified != nil && r.Verified != *f.Verified {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Name), q) &&
			!strings.Contains(strings.ToLower(r.Address), q) &&
			!strings.Contains(strings.ToLower(r.Cuisine), q) {
			return false
		}
	}
	if f.Bounds != nil && !f.Bounds.Contains(r.Coordinate()) {
		return false
	}
	return true
}
