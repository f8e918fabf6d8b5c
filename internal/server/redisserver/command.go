// Package redisserver provides the Redis protocol server for Cardinal.
package redisserver

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cardinalkv/cardinal/internal/core/domain"
	"github.com/cardinalkv/cardinal/internal/infra/buildinfo"
	"github.com/cardinalkv/cardinal/internal/storage/memory"
	"github.com/cardinalkv/cardinal/internal/telemetry/metric"
)

// commandKind is the closed enumeration of supported commands, parsed
// once per request from the first frame element.
type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdPing
	cmdEcho
	cmdCommand
	cmdSelect
	cmdSet
	cmdGet
	cmdConfig
	cmdKeys
	cmdInfo
)

func lookupCommand(name string) commandKind {
	switch name {
	case "PING":
		return cmdPing
	case "ECHO":
		return cmdEcho
	case "COMMAND":
		return cmdCommand
	case "SELECT":
		return cmdSelect
	case "SET":
		return cmdSet
	case "GET":
		return cmdGet
	case "CONFIG":
		return cmdConfig
	case "KEYS":
		return cmdKeys
	case "INFO":
		return cmdInfo
	}
	return cmdUnknown
}

// CommandHandler executes client commands against the store.
type CommandHandler struct {
	store      *memory.Store
	dir        string
	dbFilename string
	replicaOf  string
	logger     *slog.Logger
	metrics    *metric.Registry
}

// NewCommandHandler creates a new CommandHandler. The metrics registry
// may be nil.
func NewCommandHandler(store *memory.Store, cfg *Config, m *metric.Registry, logger *slog.Logger) *CommandHandler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{
		store:      store,
		dir:        cfg.Dir,
		dbFilename: cfg.DBFilename,
		replicaOf:  cfg.ReplicaOf,
		logger:     logger,
		metrics:    m,
	}
}

// Handle handles one decoded request frame: an array whose first
// element names the command. The reply is written to the connection's
// buffered writer; the caller flushes.
func (h *CommandHandler) Handle(conn *Conn, req Value) {
	if req.Type != TypeArray || len(req.Array) == 0 {
		h.replyError(conn, "ERR no command")
		return
	}
	if req.Array[0].Type != TypeBulkString {
		h.replyError(conn, "ERR command name must be a bulk string")
		return
	}

	name := normalizeCommandName(req.Array[0].Bytes)
	args := req.Array[1:]

	if h.metrics != nil {
		h.metrics.CommandsTotal.WithLabelValues(name).Inc()
	}

	switch lookupCommand(name) {
	case cmdPing:
		h.handlePing(conn, args)
	case cmdEcho:
		h.handleEcho(conn, args)
	case cmdCommand:
		h.replyError(conn, "ERR COMMAND not implemented")
	case cmdSelect:
		h.handleSelect(conn, args)
	case cmdSet:
		h.handleSet(conn, args)
	case cmdGet:
		h.handleGet(conn, args)
	case cmdConfig:
		h.handleConfig(conn, args)
	case cmdKeys:
		h.handleKeys(conn, args)
	case cmdInfo:
		h.handleInfo(conn, args)
	default:
		h.replyError(conn, "ERR unknown command '"+name+"'")
	}
}

func (h *CommandHandler) replyError(conn *Conn, msg string) {
	if h.metrics != nil {
		h.metrics.CommandErrors.Inc()
	}
	_ = WriteError(conn.bw, msg)
}

func (h *CommandHandler) handlePing(conn *Conn, args []Value) {
	if len(args) > 0 && args[0].Type == TypeBulkString {
		_ = WriteBulk(conn.bw, args[0].Bytes)
		return
	}
	_ = WriteSimpleString(conn.bw, "PONG")
}

func (h *CommandHandler) handleEcho(conn *Conn, args []Value) {
	if len(args) == 0 || args[0].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'echo' command")
		return
	}
	_ = WriteBulk(conn.bw, args[0].Bytes)
}

// handleSelect switches the connection's logical database. The index
// is not range-checked here; the store treats out-of-range indices as
// absent namespaces.
func (h *CommandHandler) handleSelect(conn *Conn, args []Value) {
	if len(args) == 0 || args[0].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'select' command")
		return
	}
	index, err := strconv.Atoi(string(args[0].Bytes))
	if err != nil {
		h.replyError(conn, "ERR value is not an integer or out of range")
		return
	}
	conn.db = index
	h.logger.Debug("client selected database", "db", index)
	_ = WriteSimpleString(conn.bw, "OK")
}

// handleSet stores a string value, with an optional PX (milliseconds)
// or EX (seconds) expiry option.
func (h *CommandHandler) handleSet(conn *Conn, args []Value) {
	if len(args) < 2 || args[0].Type != TypeBulkString || args[1].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'set' command")
		return
	}

	key := string(args[0].Bytes)
	value := domain.String(string(args[1].Bytes))

	var (
		ttl    time.Duration
		hasTTL bool
	)
	if len(args) >= 4 && args[2].Type == TypeBulkString && args[3].Type == TypeBulkString {
		option := normalizeCommandName(args[2].Bytes)
		amount, err := strconv.ParseUint(string(args[3].Bytes), 10, 64)
		switch option {
		case "PX":
			if err != nil {
				h.replyError(conn, "ERR value is not an integer or out of range")
				return
			}
			ttl, hasTTL = time.Duration(amount)*time.Millisecond, true
		case "EX":
			if err != nil {
				h.replyError(conn, "ERR value is not an integer or out of range")
				return
			}
			ttl, hasTTL = time.Duration(amount)*time.Second, true
		}
	}

	if hasTTL {
		h.store.SetWithTTL(conn.db, key, value, ttl)
	} else {
		h.store.Set(conn.db, key, value)
	}
	_ = WriteSimpleString(conn.bw, "OK")
}

func (h *CommandHandler) handleGet(conn *Conn, args []Value) {
	if len(args) == 0 || args[0].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'get' command")
		return
	}

	value, ok := h.store.Get(conn.db, string(args[0].Bytes))
	if !ok || !value.IsString() {
		_ = WriteNullBulk(conn.bw)
		return
	}
	_ = WriteBulkString(conn.bw, value.Str)
}

// handleConfig implements CONFIG GET for the dir and dbfilename
// parameters. SET, REWRITE and RESETSTAT are accepted and ignored.
func (h *CommandHandler) handleConfig(conn *Conn, args []Value) {
	if len(args) == 0 || args[0].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'config' command")
		return
	}

	switch normalizeCommandName(args[0].Bytes) {
	case "GET":
		var pairs []string
		for _, arg := range args[1:] {
			if arg.Type != TypeBulkString {
				continue
			}
			switch strings.ToLower(string(arg.Bytes)) {
			case "dir":
				pairs = append(pairs, "dir", h.dir)
			case "dbfilename":
				pairs = append(pairs, "dbfilename", h.dbFilename)
			}
		}
		_ = WriteArrayHeader(conn.bw, len(pairs))
		for _, p := range pairs {
			_ = WriteBulkString(conn.bw, p)
		}
	case "SET", "REWRITE", "RESETSTAT":
		_ = WriteSimpleString(conn.bw, "OK")
	default:
		h.replyError(conn, "ERR unknown CONFIG subcommand")
	}
}

// handleKeys lists every key in the connection's database. Only the
// literal "*" pattern is supported. The listing does not filter
// expired-but-unevicted entries.
func (h *CommandHandler) handleKeys(conn *Conn, args []Value) {
	if len(args) == 0 || args[0].Type != TypeBulkString {
		h.replyError(conn, "ERR wrong number of arguments for 'keys' command")
		return
	}
	if string(args[0].Bytes) != "*" {
		h.replyError(conn, "ERR only the '*' pattern is supported")
		return
	}

	keys, err := h.store.Keys(conn.db)
	if err != nil {
		h.replyError(conn, "ERR database doesn't exist")
		return
	}

	reply := make([]Value, 0, len(keys))
	for _, k := range keys {
		reply = append(reply, BulkString([]byte(k)))
	}
	_ = WriteValue(conn.bw, ArrayOf(reply...))
}

func (h *CommandHandler) handleInfo(conn *Conn, _ []Value) {
	role := "master"
	if h.replicaOf != "" {
		role = "slave"
	}

	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("cardinal_version:" + buildinfo.Version + "\r\n")
	b.WriteString("# Replication\r\n")
	b.WriteString("role:" + role + "\r\n")
	_ = WriteBulkString(conn.bw, b.String())
}
