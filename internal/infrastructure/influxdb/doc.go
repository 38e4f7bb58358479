// Package influxdb records discovery telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written:
//   - soma_advertisement: every resolved advertisement with RSSI and the
//     filter decision
//   - soma_scan: one point per finished scan with mode, stop reason,
//     device count and duration
//   - soma_connection: device state transitions
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteScanSummary(influxdb.ScanSummary{Mode: "count", Reason: "target reached", Registered: 2})
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch errors are delivered to the SetOnError callback.
package influxdb
