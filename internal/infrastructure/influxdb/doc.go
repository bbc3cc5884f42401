// Package influxdb provides time-series storage for shadow state history.
//
// Every published shadow document version can be recorded as a point in
// the shadow_state measurement, tagged by thing_id, with the document's
// scalar leaves flattened into fields. Writes are non-blocking and
// batched; errors surface through the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Error("history write failed", "error", err)
//	})
//	client.WriteShadowState("tap-kitchen", map[string]any{"temp_c": 21.5})
package influxdb
