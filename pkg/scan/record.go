// Package scan defines the scan record produced by the device's token
// reader and shipped to the orchestrator.
package scan

// Record is one discrete scan event. It is immutable after construction:
// the reader builds it, the orchestrator facade either sends or queues it.
type Record struct {
	TokenID    string `json:"tokenId"`
	TeamID     string `json:"teamId,omitempty"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Timestamp  string `json:"timestamp"`
}

// Valid reports whether all required fields are present.
// TeamID is optional.
func (r Record) Valid() bool {
	return r.TokenID != "" && r.DeviceID != "" && r.DeviceType != "" && r.Timestamp != ""
}
