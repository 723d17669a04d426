// Package client speaks the stowd wire protocol.
//
// Every call dials a fresh connection, sends one request, half-closes the
// write side and reads the response until the server closes.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/marmos91/stowd/internal/protocol"
)

// DefaultDialTimeout bounds connection setup when no option overrides it.
const DefaultDialTimeout = 10 * time.Second

// ServerError is an ERROR response.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// IsUnknownFile reports whether the server did not know the filename.
func (e *ServerError) IsUnknownFile() bool {
	return e.Message == protocol.MsgUnknownFile
}

// IsBadRequest reports whether the server rejected the request as malformed.
func (e *ServerError) IsBadRequest() bool {
	return e.Message == protocol.MsgBadRequest
}

// IsUnknownFile reports whether err is a ServerError for an unknown file.
func IsUnknownFile(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsUnknownFile()
}

// Client is a stowd protocol client. It is safe for concurrent use.
type Client struct {
	addr        string
	order       protocol.ByteOrder
	dialTimeout time.Duration
	dialer      *net.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithByteOrder sets the size field encoding. It must match the server.
func WithByteOrder(o protocol.ByteOrder) Option {
	return func(c *Client) { c.order = o }
}

// WithDialTimeout bounds connection setup.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// New returns a client for the server at addr (host:port).
func New(addr string, opts ...Option) *Client {
	c := &Client{
		addr:        addr,
		order:       protocol.LittleEndian,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &net.Dialer{Timeout: c.dialTimeout}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// List returns the indexed filenames in server order.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var names []string
	err := c.roundTrip(ctx, protocol.AppendRequest(nil, protocol.CommandList, ""), nil,
		func(r *bufio.Reader) error {
			size, err := protocol.ReadSize(r, c.order)
			if err != nil {
				return err
			}
			var body strings.Builder
			if _, err := io.CopyN(&body, r, int64(size)); err != nil {
				return fmt.Errorf("read listing: %w", err)
			}
			names = splitNames(body.String())
			return nil
		})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Get streams name into w and returns the number of bytes written.
func (c *Client) Get(ctx context.Context, name string, w io.Writer) (int64, error) {
	var n int64
	err := c.roundTrip(ctx, protocol.AppendRequest(nil, protocol.CommandGet, name), nil,
		func(r *bufio.Reader) error {
			size, err := protocol.ReadSize(r, c.order)
			if err != nil {
				return err
			}
			n, err = io.CopyN(w, r, int64(size))
			if err != nil {
				return fmt.Errorf("read %s: got %d of %d bytes: %w", name, n, size, err)
			}
			return nil
		})
	return n, err
}

// Put uploads size bytes from r as name.
func (c *Client) Put(ctx context.Context, name string, r io.Reader, size uint64) error {
	header := protocol.AppendRequest(nil, protocol.CommandPut, name)
	header = protocol.AppendUint64(c.order, header, size)
	return c.roundTrip(ctx, header, io.LimitReader(r, int64(size)), nil)
}

// Delete removes name. Deleting an unknown name succeeds.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.roundTrip(ctx, protocol.AppendRequest(nil, protocol.CommandDelete, name), nil, nil)
}

// roundTrip sends header and body, half-closes, and decodes the status.
// onOK reads whatever follows a successful status.
func (c *Client) roundTrip(ctx context.Context, header []byte, body io.Reader, onOK func(*bufio.Reader) error) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := c.send(conn, header, body); err != nil {
		// The server may have answered early, e.g. "File too large".
		if st, rerr := protocol.ReadStatus(bufio.NewReader(conn)); rerr == nil && !st.OK {
			return &ServerError{Message: st.Message}
		}
		return c.wrap(ctx, err)
	}

	r := bufio.NewReader(conn)
	st, err := protocol.ReadStatus(r)
	if err != nil {
		return c.wrap(ctx, err)
	}
	if !st.OK {
		return &ServerError{Message: st.Message}
	}
	if onOK != nil {
		if err := onOK(r); err != nil {
			return c.wrap(ctx, err)
		}
	}
	return nil
}

func (c *Client) send(conn net.Conn, header []byte, body io.Reader) error {
	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if body != nil {
		if _, err := io.Copy(conn, body); err != nil {
			return fmt.Errorf("send payload: %w", err)
		}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("half-close: %w", err)
		}
	}
	return nil
}

// wrap prefers the context error over the deadline error it caused.
func (c *Client) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

func splitNames(body string) []string {
	body = strings.TrimSuffix(body, "\n")
	if body == "" {
		return []string{}
	}
	return strings.Split(body, "\n")
}
