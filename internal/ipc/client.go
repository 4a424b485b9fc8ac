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

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Version retrieves the daemon version.
func (c *Client) Version() (string, error) {
	var resp VersionResponse
	if err := c.call("GetVersion", VersionRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("GetStatus", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DriveList returns registered drive identities.
func (c *Client) DriveList() ([]string, error) {
	var resp DriveListResponse
	if err := c.call("GetDriveList", DriveListRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Drives, nil
}

// Drive describes one drive.
func (c *Client) Drive(id string) (*DriveResponse, error) {
	var resp DriveResponse
	if err := c.call("GetDrive", DriveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DriveTypes returns the drive type names in table order.
func (c *Client) DriveTypes() ([]string, error) {
	var resp DriveTypesResponse
	if err := c.call("GetDriveTypes", DriveTypesRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Types, nil
}

// KillUsercode stops the running usercode process.
func (c *Client) KillUsercode() (*KillUsercodeResponse, error) {
	var resp KillUsercodeResponse
	if err := c.call("KillUsercode", KillUsercodeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartUsercode starts usercode on the registered usercode drive.
func (c *Client) StartUsercode() (*StartUsercodeResponse, error) {
	var resp StartUsercodeResponse
	if err := c.call("StartUsercode", StartUsercodeRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UsercodeDrive returns the identity of the drive owning usercode, or "".
func (c *Client) UsercodeDrive() (string, error) {
	var resp UsercodeDriveResponse
	if err := c.call("GetUsercodeDrive", UsercodeDriveRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UsercodeDriverName returns the active driver name, or "".
func (c *Client) UsercodeDriverName() (string, error) {
	var resp UsercodeDriverNameResponse
	if err := c.call("GetUsercodeDriverName", UsercodeDriverNameRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// WaitStatus blocks until the daemon status differs from last or timeout
// passes.
func (c *Client) WaitStatus(last string, timeout time.Duration) (*WaitStatusResponse, error) {
	var resp WaitStatusResponse
	req := WaitStatusRequest{Last: last, TimeoutMillis: int(timeout / time.Millisecond)}
	if err := c.call("WaitStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
