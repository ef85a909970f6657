// Package influx ships readings to an InfluxDB 2.x bucket.  The official
// client library is a lot of machinery for what amounts to one POST per
// reading, so this speaks the line protocol directly.
package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/trace"

	"github.com/jrockway/deskclock/sensors"
)

// Client writes line protocol to one org/bucket pair.
type Client struct {
	base   string
	org    string
	bucket string
	token  string
	http   *http.Client
	events trace.EventLog
}

// New returns a Client.  With an empty URL or token the client logs lines
// instead of sending them, which keeps the rest of the pipeline testable on
// a machine with no database.
func New(base, org, bucket, token string) *Client {
	c := &Client{
		base:   strings.TrimSuffix(base, "/"),
		org:    org,
		bucket: bucket,
		token:  token,
		http:   http.DefaultClient,
		events: trace.NewEventLog("destination", "influxdb"),
	}
	if !c.Enabled() {
		c.events.Errorf("not sending; no url or token configured")
	}
	return c
}

// Enabled reports whether lines will actually be sent anywhere.
func (c *Client) Enabled() bool {
	return c.base != "" && c.token != ""
}

// Record implements sensors.Sink.
func (c *Client) Record(r sensors.Reading) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	ts := r.Time.UnixNano()
	var b strings.Builder
	fmt.Fprintf(&b, "environment,location=indoor temperature=%v,relative_humidity=%v,pressure=%v", r.IndoorTemp, r.IndoorHumidity, r.Pressure)
	if r.HasAir {
		fmt.Fprintf(&b, ",air_ppm=%v", r.AirPPM)
	}
	fmt.Fprintf(&b, " %v\n", ts)
	if r.HasOutdoor {
		fmt.Fprintf(&b, "environment,location=outdoor temperature=%v,relative_humidity=%v %v\n", r.OutdoorTemp, r.OutdoorHumidity, ts)
	}
	return c.send(b.String())
}

// send POSTs line protocol, or just logs it when the client is disabled.
func (c *Client) send(body string) error {
	c.events.Printf("%s", body)
	if !c.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endpoint := fmt.Sprintf("%s/api/v2/write?org=%s&bucket=%s", c.base, url.QueryEscape(c.org), url.QueryEscape(c.bucket))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %v", err)
	}
	req.Header.Add("authorization", "Token "+c.token)
	req.Header.Add("content-type", "text/plain")
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("make request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(res.Body)
		c.events.Errorf("unexpected status %v", res.StatusCode)
		return fmt.Errorf("make request: unexpected status %v (%s): (body: %s)", res.StatusCode, res.Status, msg)
	}
	return nil
}
