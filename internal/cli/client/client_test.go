package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cardinalkv/cardinal/internal/server/redisserver"
	"github.com/cardinalkv/cardinal/internal/storage/memory"
)

func startServer(t *testing.T) string {
	t.Helper()

	cfg := redisserver.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := redisserver.New(cfg, memory.New(), nil, logger)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr()
}

func dial(t *testing.T) *Client {
	t.Helper()
	c, err := Dial(startServer(t))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Ping(t *testing.T) {
	c := dial(t)

	reply, err := c.Do("PING")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if reply.Type != ReplySimpleString || reply.Str != "PONG" {
		t.Errorf("reply = %+v, want +PONG", reply)
	}
}

func TestClient_SetGet(t *testing.T) {
	c := dial(t)

	reply, err := c.Do("SET", "k", "v")
	if err != nil {
		t.Fatalf("SET error = %v", err)
	}
	if reply.Str != "OK" {
		t.Errorf("SET reply = %+v, want OK", reply)
	}

	reply, err = c.Do("GET", "k")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if reply.Type != ReplyBulkString || reply.Str != "v" {
		t.Errorf("GET reply = %+v, want bulk v", reply)
	}
}

func TestClient_NullReply(t *testing.T) {
	c := dial(t)

	reply, err := c.Do("GET", "absent")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	if !reply.IsNull() {
		t.Errorf("reply = %+v, want null", reply)
	}
	if reply.Format() != "(nil)" {
		t.Errorf("Format() = %q, want (nil)", reply.Format())
	}
}

func TestClient_ErrorReply(t *testing.T) {
	c := dial(t)

	reply, err := c.Do("NOSUCHCOMMAND")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if reply.Type != ReplyError {
		t.Errorf("reply = %+v, want error reply", reply)
	}
}

func TestClient_ArrayReply(t *testing.T) {
	c := dial(t)

	if _, err := c.Do("SET", "only", "v"); err != nil {
		t.Fatalf("SET error = %v", err)
	}

	reply, err := c.Do("KEYS", "*")
	if err != nil {
		t.Fatalf("KEYS error = %v", err)
	}
	if reply.Type != ReplyArray {
		t.Fatalf("reply = %+v, want array", reply)
	}
	if len(reply.Elems) != 1 || reply.Elems[0].Str != "only" {
		t.Errorf("elems = %+v, want [only]", reply.Elems)
	}
}

func TestClient_EmptyCommand(t *testing.T) {
	c := dial(t)

	if _, err := c.Do(); err == nil {
		t.Error("Do() with no arguments should error")
	}
}

func TestReply_Format(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{
			name:  "simple string",
			reply: Reply{Type: ReplySimpleString, Str: "OK"},
			want:  "OK",
		},
		{
			name:  "error",
			reply: Reply{Type: ReplyError, Str: "ERR boom"},
			want:  "(error) ERR boom",
		},
		{
			name:  "integer",
			reply: Reply{Type: ReplyInteger, Int: 7},
			want:  "(integer) 7",
		},
		{
			name:  "bulk string",
			reply: Reply{Type: ReplyBulkString, Str: "hey"},
			want:  `"hey"`,
		},
		{
			name:  "null",
			reply: Reply{Type: ReplyNull},
			want:  "(nil)",
		},
		{
			name:  "empty array",
			reply: Reply{Type: ReplyArray},
			want:  "(empty array)",
		},
		{
			name: "array",
			reply: Reply{Type: ReplyArray, Elems: []Reply{
				{Type: ReplyBulkString, Str: "a"},
				{Type: ReplyBulkString, Str: "b"},
			}},
			want: "1) \"a\"\n2) \"b\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reply.Format(); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}
