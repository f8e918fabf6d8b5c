// Package client implements a small Redis protocol client used by
// cardinal-cli.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalkv/cardinal/internal/server/redisserver"
)

// DefaultDialTimeout is the default timeout for establishing a
// connection to the server.
const DefaultDialTimeout = 5 * time.Second

// ErrServerReply is returned when the server answers with an error
// reply.
var ErrServerReply = errors.New("server error")

// ReplyType identifies the shape of a server reply.
type ReplyType byte

// Reply types.
const (
	ReplySimpleString ReplyType = '+'
	ReplyError        ReplyType = '-'
	ReplyInteger      ReplyType = ':'
	ReplyBulkString   ReplyType = '$'
	ReplyArray        ReplyType = '*'
	ReplyNull         ReplyType = '_'
)

// Reply is a decoded server reply.
type Reply struct {
	Type  ReplyType
	Str   string
	Int   int64
	Elems []Reply
}

// IsNull reports whether the reply is a null bulk string or null
// array.
func (r Reply) IsNull() bool {
	return r.Type == ReplyNull
}

// Format renders the reply the way redis-cli would.
func (r Reply) Format() string {
	switch r.Type {
	case ReplySimpleString:
		return r.Str
	case ReplyError:
		return "(error) " + r.Str
	case ReplyInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case ReplyBulkString:
		return fmt.Sprintf("%q", r.Str)
	case ReplyNull:
		return "(nil)"
	case ReplyArray:
		if len(r.Elems) == 0 {
			return "(empty array)"
		}
		var b strings.Builder
		for i, e := range r.Elems {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%d) %s", i+1, e.Format())
		}
		return b.String()
	default:
		return r.Str
	}
}

// Client is a connection to a cardinal server.
type Client struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
}

// Dial connects to the server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends a command and returns the decoded reply. The command and
// its arguments are encoded as an array of bulk strings.
func (c *Client) Do(args ...string) (Reply, error) {
	if len(args) == 0 {
		return Reply{}, errors.New("empty command")
	}

	elems := make([]redisserver.Value, 0, len(args))
	for _, a := range args {
		elems = append(elems, redisserver.BulkString([]byte(a)))
	}
	if err := redisserver.WriteValue(c.bw, redisserver.ArrayOf(elems...)); err != nil {
		return Reply{}, fmt.Errorf("write command: %w", err)
	}
	if err := c.bw.Flush(); err != nil {
		return Reply{}, fmt.Errorf("flush command: %w", err)
	}

	return c.readReply()
}

func (c *Client) readReply() (Reply, error) {
	line, err := c.readLine()
	if err != nil {
		return Reply{}, err
	}
	if len(line) == 0 {
		return Reply{}, errors.New("empty reply line")
	}

	tag, rest := line[0], line[1:]
	switch tag {
	case '+':
		return Reply{Type: ReplySimpleString, Str: rest}, nil
	case '-':
		return Reply{Type: ReplyError, Str: rest}, nil
	case ':':
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("bad integer reply %q: %w", rest, err)
		}
		return Reply{Type: ReplyInteger, Int: n}, nil
	case '$':
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Reply{}, fmt.Errorf("bad bulk length %q: %w", rest, err)
		}
		if n < 0 {
			return Reply{Type: ReplyNull}, nil
		}
		payload := make([]byte, n+2)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return Reply{}, fmt.Errorf("read bulk payload: %w", err)
		}
		return Reply{Type: ReplyBulkString, Str: string(payload[:n])}, nil
	case '*':
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Reply{}, fmt.Errorf("bad array length %q: %w", rest, err)
		}
		if n < 0 {
			return Reply{Type: ReplyNull}, nil
		}
		elems := make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			elem, err := c.readReply()
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, elem)
		}
		return Reply{Type: ReplyArray, Elems: elems}, nil
	default:
		return Reply{}, fmt.Errorf("unknown reply tag %q", tag)
	}
}

func (c *Client) readLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
