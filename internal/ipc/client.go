package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
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

// Status retrieves the engine status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("FlowScribe.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enable turns backups on.
func (c *Client) Enable() (*EnableResponse, error) {
	var resp EnableResponse
	if err := c.client.Call("FlowScribe.Enable", EnableRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disable turns periodic backups off.
func (c *Client) Disable() (*DisableResponse, error) {
	var resp DisableResponse
	if err := c.client.Call("FlowScribe.Disable", DisableRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BackupNow triggers a synchronous backup run.
func (c *Client) BackupNow(reason string) (*BackupNowResponse, error) {
	var resp BackupNowResponse
	if err := c.client.Call("FlowScribe.BackupNow", BackupNowRequest{Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reauthorize restores backup root access after a permission pause.
func (c *Client) Reauthorize() (*ReauthorizeResponse, error) {
	var resp ReauthorizeResponse
	if err := c.client.Call("FlowScribe.Reauthorize", ReauthorizeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkDirty records unsaved changes for a session.
func (c *Client) MarkDirty(sessionKey, sessionLabel string) (*MarkDirtyResponse, error) {
	var resp MarkDirtyResponse
	req := MarkDirtyRequest{SessionKey: sessionKey, SessionLabel: sessionLabel}
	if err := c.client.Call("FlowScribe.MarkDirty", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearDirty removes a session's dirty marker.
func (c *Client) ClearDirty(sessionKey string) (*ClearDirtyResponse, error) {
	var resp ClearDirtyResponse
	if err := c.client.Call("FlowScribe.ClearDirty", ClearDirtyRequest{SessionKey: sessionKey}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DismissDirty discards a recovery offer by hashed session key.
func (c *Client) DismissDirty(sessionKeyHash string) (*DismissDirtyResponse, error) {
	var resp DismissDirtyResponse
	req := DismissDirtyRequest{SessionKeyHash: sessionKeyHash}
	if err := c.client.Call("FlowScribe.DismissDirty", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecoveryStatus lists pending recovery offers.
func (c *Client) RecoveryStatus() (*RecoveryStatusResponse, error) {
	var resp RecoveryStatusResponse
	if err := c.client.Call("FlowScribe.RecoveryStatus", RecoveryStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SnapshotList retrieves the grouped backup root contents.
func (c *Client) SnapshotList() (*SnapshotListResponse, error) {
	var resp SnapshotListResponse
	if err := c.client.Call("FlowScribe.SnapshotList", SnapshotListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Restore reads one snapshot back by manifest filename.
func (c *Client) Restore(filename string) (*RestoreResponse, error) {
	var resp RestoreResponse
	if err := c.client.Call("FlowScribe.Restore", RestoreRequest{Filename: filename}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Adopt switches the engine to an existing backup root.
func (c *Client) Adopt(root string) (*AdoptResponse, error) {
	var resp AdoptResponse
	if err := c.client.Call("FlowScribe.Adopt", AdoptRequest{Root: root}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("FlowScribe.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
