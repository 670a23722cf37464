package domain

import "time"

// ExplorerTxURL is the block explorer prefix for certification transactions.
const ExplorerTxURL = "https://polygonscan.com/tx/"

// Verification is the public certificate view shown when a QR code is scanned.
type Verification struct {
	RestaurantID     string     `json:"restaurant_id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	Verified         bool       `json:"verified"`
	Active           bool       `json:"active"`
	CertificationID  string     `json:"certification_id,omitempty"`
	IssuingAuthority string     `json:"issuing_authority,omitempty"`
	CertifiedDate    *time.Time `json:"certified_date,omitempty"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	TxHash           string     `json:"tx_hash,omitempty"`
	BlockNumber      string     `json:"block_number,omitempty"`
	ExplorerURL      string     `json:"explorer_url,omitempty"`
	QRScanCount      int        `json:"qr_scan_count"`
}

// NewVerification builds the certificate view of r as of now.
func NewVerification(r Restaurant, now time.Time) Verification {
	v := Verification{
		RestaurantID:     r.ID,
		Name:             r.Name,
		Address:          r.Address,
		Verified:         r.Verified,
		Active:           r.CertificationActive(now),
		CertificationID:  r.CertificationID,
		IssuingAuthority: r.IssuingAuthority,
		CertifiedDate:    r.CertifiedDate,
		ExpiryDate:       r.ExpiryDate,
		TxHash:           r.TxHash,
		BlockNumber:      r.BlockNumber,
		QRScanCount:      r.QRScanCount,
	}
	if r.TxHash != "" {
		v.ExplorerURL = ExplorerTxURL + r.TxHash
	}
	return v
}
