package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementAdvertisement = "soma_advertisement"
	MeasurementScan          = "soma_scan"
	MeasurementConnection    = "soma_connection"
)

// Advertisement is one resolved advertisement and the filter's verdict.
type Advertisement struct {
	ID       string
	Kind     string
	Name     string
	Address  string
	RSSI     int16
	Decision string
}

// ScanSummary describes a finished scan.
type ScanSummary struct {
	Mode       string
	Reason     string
	Registered int
	Elapsed    time.Duration
}

// WriteAdvertisement records a resolved advertisement. Non-blocking.
func (c *Client) WriteAdvertisement(adv Advertisement) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(advertisementPoint(adv, c.now()))
}

// WriteScanSummary records the end of a scan. Non-blocking.
func (c *Client) WriteScanSummary(s ScanSummary) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(scanPoint(s, c.now()))
}

// WriteConnectionState records a device state transition. Non-blocking.
func (c *Client) WriteConnectionState(id, kind, state string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionPoint(id, kind, state, c.now()))
}

func advertisementPoint(adv Advertisement, ts time.Time) *write.Point {
	fields := map[string]any{
		"rssi": int64(adv.RSSI),
	}
	if adv.Name != "" {
		fields["name"] = adv.Name
	}
	if adv.Address != "" {
		fields["address"] = adv.Address
	}
	return write.NewPoint(
		MeasurementAdvertisement,
		map[string]string{
			"device_id": adv.ID,
			"kind":      adv.Kind,
			"decision":  adv.Decision,
		},
		fields,
		ts,
	)
}

func scanPoint(s ScanSummary, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementScan,
		map[string]string{
			"mode":   s.Mode,
			"reason": s.Reason,
		},
		map[string]any{
			"registered":      int64(s.Registered),
			"elapsed_seconds": s.Elapsed.Seconds(),
		},
		ts,
	)
}

func connectionPoint(id, kind, state string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementConnection,
		map[string]string{
			"device_id": id,
			"kind":      kind,
		},
		map[string]any{
			"state": state,
		},
		ts,
	)
}
