package protocol

import (
	"fmt"
	"net"
	"time"
)

// Client is the shim-side handle to a running governor. Dial returns a nil
// Client when it fails, so there is nothing to call methods on; per the
// fail-open policy, shims are expected to treat every Client error as "run
// ungoverned" rather than propagate it.
type Client struct {
	conn  net.Conn
	codec *Codec
}

// Dial connects to the governor's endpoint with a bounded timeout. A
// failure here is ordinary in the fail-open design: the caller should
// proceed ungoverned rather than treat it as fatal.
func Dial(endpoint string, timeout time.Duration) (*Client, error) {
	conn, err := dial(endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s: %w", endpoint, err)
	}
	return &Client{conn: conn, codec: NewCodec(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) roundTrip(reqType string, req any, respType string, resp any) error {
	if err := c.codec.Write(reqType, req); err != nil {
		return fmt.Errorf("protocol: send %s: %w", reqType, err)
	}
	env, err := c.codec.ReadEnvelope()
	if err != nil {
		return fmt.Errorf("protocol: read %s: %w", respType, err)
	}
	if env.Error != "" {
		return fmt.Errorf("protocol: governor error: %s", env.Error)
	}
	if env.Type != respType {
		return fmt.Errorf("protocol: expected %s, got %s", respType, env.Type)
	}
	return Decode(env, resp)
}

// Acquire requests tokens for a tool invocation.
func (c *Client) Acquire(req AcquireRequest) (AcquireResponse, error) {
	var resp AcquireResponse
	err := c.roundTrip(TypeAcquire, req, TypeAcquireResponse, &resp)
	return resp, err
}

// Release reports the outcome of a finished tool invocation.
func (c *Client) Release(req ReleaseRequest) (ReleaseResponse, error) {
	var resp ReleaseResponse
	err := c.roundTrip(TypeRelease, req, TypeReleaseResponse, &resp)
	return resp, err
}

// Status queries the current pool state.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.roundTrip(TypeStatus, struct{}{}, TypeStatusResponse, &resp)
	return resp, err
}

// Heartbeat asks whether a lease is still held by the governor. It does not
// extend the lease.
func (c *Client) Heartbeat(leaseID string) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := c.roundTrip(TypeHeartbeat, HeartbeatRequest{LeaseID: leaseID}, TypeHeartbeatResp, &resp)
	return resp, err
}
