package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePointAt queues a point for the next batch. Points written after
// Close are counted as dropped.
//
// Example:
//
//	client.WritePointAt("chroma_frame",
//	    map[string]string{"failed": "false"},
//	    map[string]any{"duration_us": 412, "devices": 3},
//	    time.Now())
func (c *Client) WritePointAt(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.open {
		c.dropped.Add(1)
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, at))
	c.queued.Add(1)
}

// Flush sends queued points now. No-op after Close.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.open {
		c.writer.Flush()
	}
}
