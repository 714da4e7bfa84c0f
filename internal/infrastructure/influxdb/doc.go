// Package influxdb exports the daemon's frame statistics and group events to
// an InfluxDB v2 bucket.
//
// Points are batched by the influxdb-client-go write API according to
// batch_size and flush_interval; the render loop only enqueues. Rejected
// batches are logged and counted in Stats.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, log.Component("influxdb"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := telemetry.NewSink(client, cfg.Engine.FrameRate)
package influxdb
