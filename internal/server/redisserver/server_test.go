package redisserver

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cardinalkv/cardinal/internal/storage/memory"
)

func startTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Addr = "127.0.0.1:0"

	srv := New(cfg, memory.New(), nil, discardLogger())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dialTestServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readLine(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	return line
}

func TestServer_PingPong(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	br := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readLine(t, br); got != "+PONG\r\n" {
		t.Errorf("reply = %q, want %q", got, "+PONG\r\n")
	}
}

func TestServer_SplitDelivery(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	br := bufio.NewReader(conn)

	// One byte at a time; the server must suspend parsing until the
	// frame completes, then answer exactly once.
	request := "*2\r\n$4\r\nECHO\r\n$3\r\nhey\r\n"
	for i := 0; i < len(request); i++ {
		if _, err := conn.Write([]byte{request[i]}); err != nil {
			t.Fatalf("Write() byte %d error = %v", i, err)
		}
	}

	if got := readLine(t, br); got != "$3\r\n" {
		t.Fatalf("reply header = %q, want %q", got, "$3\r\n")
	}
	if got := readLine(t, br); got != "hey\r\n" {
		t.Errorf("reply payload = %q, want %q", got, "hey\r\n")
	}
}

func TestServer_PipelinedRequests(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	br := bufio.NewReader(conn)

	// Two requests in one write; replies arrive in order.
	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got := readLine(t, br); got != "+PONG\r\n" {
		t.Errorf("first reply = %q, want %q", got, "+PONG\r\n")
	}
	if got := readLine(t, br); got != "$2\r\n" {
		t.Fatalf("second reply header = %q, want %q", got, "$2\r\n")
	}
	if got := readLine(t, br); got != "hi\r\n" {
		t.Errorf("second reply payload = %q, want %q", got, "hi\r\n")
	}
}

func TestServer_SetGetAcrossConnections(t *testing.T) {
	srv := startTestServer(t, nil)

	first := dialTestServer(t, srv)
	br := bufio.NewReader(first)
	if _, err := first.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readLine(t, br); got != "+OK\r\n" {
		t.Fatalf("SET reply = %q, want %q", got, "+OK\r\n")
	}
	first.Close()

	// The store outlives the connection.
	second := dialTestServer(t, srv)
	br = bufio.NewReader(second)
	if _, err := second.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readLine(t, br); got != "$3\r\n" {
		t.Fatalf("GET reply header = %q, want %q", got, "$3\r\n")
	}
	if got := readLine(t, br); got != "bar\r\n" {
		t.Errorf("GET reply payload = %q, want %q", got, "bar\r\n")
	}
}

func TestServer_MessageTooBig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	srv := startTestServer(t, cfg)
	conn := dialTestServer(t, srv)
	br := bufio.NewReader(conn)

	// A bulk string larger than the receive buffer can never complete.
	payload := strings.Repeat("x", 128)
	if _, err := conn.Write([]byte("*2\r\n$4\r\nECHO\r\n$128\r\n" + payload + "\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got := readLine(t, br)
	if !strings.HasPrefix(got, "-ERR protocol error: message too big") {
		t.Errorf("reply = %q, want message too big error", got)
	}

	// The server closes the connection after the error reply.
	if _, err := br.ReadByte(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestServer_MalformedFrameClosesConnection(t *testing.T) {
	srv := startTestServer(t, nil)
	conn := dialTestServer(t, srv)
	br := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("!bogus\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got := readLine(t, br)
	if !strings.HasPrefix(got, "-ERR protocol error") {
		t.Errorf("reply = %q, want protocol error", got)
	}
	if _, err := br.ReadByte(); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestServer_ErrorDoesNotAffectOtherConnections(t *testing.T) {
	srv := startTestServer(t, nil)

	bad := dialTestServer(t, srv)
	badReader := bufio.NewReader(bad)
	if _, err := bad.Write([]byte("!bogus\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	readLine(t, badReader)

	good := dialTestServer(t, srv)
	goodReader := bufio.NewReader(good)
	if _, err := good.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readLine(t, goodReader); got != "+PONG\r\n" {
		t.Errorf("reply = %q, want %q", got, "+PONG\r\n")
	}
}

func TestServer_Shutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, memory.New(), nil, discardLogger())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	addr := srv.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := net.Dial("tcp", addr); err == nil {
		t.Error("expected listener to be closed after Shutdown")
	}
}
