package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// shadowStateMeasurement is the measurement name for document history.
const shadowStateMeasurement = "shadow_state"

// WriteShadowState records one published shadow document version.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Fields should be the document's scalar leaves flattened to dotted paths
// (see history.Flatten). Empty field sets are skipped since InfluxDB
// rejects points without fields.
//
// Parameters:
//   - thingID: The device whose document changed (tag, low cardinality)
//   - fields: Flattened scalar values (e.g., "hvac.temp_c": 21.5)
func (c *Client) WriteShadowState(thingID string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		shadowStateMeasurement,
		map[string]string{"thing_id": thingID},
		fields,
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("service_stats",
//	    map[string]string{"instance": "shadowcore-01"},
//	    map[string]any{"devices": 12, "updates_pending": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
