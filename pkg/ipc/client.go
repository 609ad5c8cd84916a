package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNotRunning hints that no daemon is listening on the socket.
var ErrNotRunning = errors.New("kbgroupd might not be running")

// Client speaks the command protocol to a running daemon.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w, %w", socketPath, err, ErrNotRunning)
	}

	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Command sends one command line and returns the response payload.
// An "ok" response yields "", "ok <data>" yields the data, anything
// else becomes an error.
func (c *Client) Command(line string) (string, error) {
	if _, err := fmt.Fprintln(c.conn, line); err != nil {
		return "", fmt.Errorf("write to socket: %w", err)
	}

	resp, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read from socket: %w", err)
	}
	resp = strings.TrimSuffix(resp, "\n")

	switch {
	case resp == "ok":
		return "", nil
	case strings.HasPrefix(resp, "ok "):
		return strings.TrimPrefix(resp, "ok "), nil
	case strings.HasPrefix(resp, "error: "):
		return "", errors.New(strings.TrimPrefix(resp, "error: "))
	}
	return "", fmt.Errorf("malformed response: %q", resp)
}

// EventClient reads "name>>payload" lines from the event socket.
type EventClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func ListenEvents(socketPath string) (*EventClient, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w, %w", socketPath, err, ErrNotRunning)
	}

	return &EventClient{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *EventClient) Close() error {
	return c.conn.Close()
}

func (c *EventClient) ReadLine() (string, error) {
	str, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read from event socket: %w", err)
	}
	return strings.TrimSuffix(str, "\n"), nil
}
