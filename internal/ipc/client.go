package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the agent.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the agent status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Enqueue records a custody transfer.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	return call[EnqueueResponse](c, "Enqueue", req)
}

// QueueList lists queued transfers, optionally filtered by status.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{Statuses: statuses})
}

// QueueDescribe returns a single transfer.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	return call[QueueDescribeResponse](c, "QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueRemove deletes transfers by id.
func (c *Client) QueueRemove(ids []string) (*QueueRemoveResponse, error) {
	return call[QueueRemoveResponse](c, "QueueRemove", QueueRemoveRequest{IDs: ids})
}

// SyncNow runs a sync pass and waits for it to finish.
func (c *Client) SyncNow() (*SyncResponse, error) {
	return call[SyncResponse](c, "SyncNow", SyncNowRequest{})
}

// RetryFailed resets FAILED transfers and syncs when online.
func (c *Client) RetryFailed() (*RetryFailedResponse, error) {
	return call[RetryFailedResponse](c, "RetryFailed", RetryFailedRequest{})
}

// ClearFailed drops FAILED transfers.
func (c *Client) ClearFailed() (*ClearFailedResponse, error) {
	return call[ClearFailedResponse](c, "ClearFailed", ClearFailedRequest{})
}

// Foreground signals operator presence.
func (c *Client) Foreground() (*ForegroundResponse, error) {
	return call[ForegroundResponse](c, "Foreground", ForegroundRequest{})
}

// Stop requests the agent to stop.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// TestNotification sends a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
