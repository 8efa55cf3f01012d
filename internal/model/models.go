package model

import (
	"errors"
)

const (
	UnknownASN          = "00000000"
	UnknownOrganization = "unknown"
	UnknownCountry      = "XX"
)

var (
	// ErrConfiguration is returned when the dataset or settings cannot be used at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidAddress is returned for input that is not a dotted-quad IPv4 address.
	ErrInvalidAddress = errors.New("invalid IP address")
	// ErrResource is returned when the underlying query mechanism fails.
	ErrResource = errors.New("resource error")
)

type NetworkRange struct {
	Seq          int64  `db:"seq"`
	Network      string `db:"network"`
	MinIP        uint64 `db:"min_ip"`
	MaxIP        uint64 `db:"max_ip"`
	ASN          string `db:"asn"`
	Organization string `db:"organization"`
	Country      string `db:"country"`
}

func (r NetworkRange) Size() uint64 {
	return r.MaxIP - r.MinIP
}

// Narrower reports whether r wins over o when both contain the same address.
func (r NetworkRange) Narrower(o NetworkRange) bool {
	if r.Size() != o.Size() {
		return r.Size() < o.Size()
	}
	return r.Seq < o.Seq
}

type LookupResult struct {
	IP           string `json:"ip"`
	Network      string `json:"network"`
	MinIP        uint64 `json:"min_ip"`
	MaxIP        uint64 `json:"max_ip"`
	ASN          string `json:"asn"`
	Organization string `json:"organization"`
	Country      string `json:"country"`
}

func NewLookupResult(ip string, r NetworkRange) *LookupResult {
	return &LookupResult{
		IP:           ip,
		Network:      r.Network,
		MinIP:        r.MinIP,
		MaxIP:        r.MaxIP,
		ASN:          r.ASN,
		Organization: r.Organization,
		Country:      r.Country,
	}
}

// UnknownResult is the placeholder returned when no range contains the address.
func UnknownResult(ip string, value uint32) *LookupResult {
	return &LookupResult{
		IP:           ip,
		Network:      ip,
		MinIP:        uint64(value),
		MaxIP:        uint64(value),
		ASN:          UnknownASN,
		Organization: UnknownOrganization,
		Country:      UnknownCountry,
	}
}

func (r *LookupResult) IsUnknown() bool {
	return r.ASN == UnknownASN && r.Organization == UnknownOrganization && r.Country == UnknownCountry
}

type BatchRequest struct {
	IPs []string `json:"ips"`
}

type BatchItem struct {
	IP     string        `json:"ip"`
	Result *LookupResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}
