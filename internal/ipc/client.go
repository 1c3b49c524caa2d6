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

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Usher.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Usher.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemList returns catalog items optionally filtered by readiness names.
func (c *Client) ItemList(readiness []string) (*ItemListResponse, error) {
	var resp ItemListResponse
	if err := c.client.Call("Usher.ItemList", ItemListRequest{Readiness: readiness}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ItemDescribe returns details for a single catalog item.
func (c *Client) ItemDescribe(id string) (*ItemDescribeResponse, error) {
	var resp ItemDescribeResponse
	if err := c.client.Call("Usher.ItemDescribe", ItemDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Promote forces an item READY and publishes the resulting frame.
func (c *Client) Promote(id string) (*PromoteResponse, error) {
	var resp PromoteResponse
	if err := c.client.Call("Usher.Promote", PromoteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
