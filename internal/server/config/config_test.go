package config

import (
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Server.MaxMessageSize != DefaultMaxMessageSize {
		t.Errorf("Server.MaxMessageSize = %d, want %d", cfg.Server.MaxMessageSize, DefaultMaxMessageSize)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to false")
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
}

func TestDefault_PassesVerify(t *testing.T) {
	if err := Verify(Default()); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestSnapshotSection_Path(t *testing.T) {
	s := SnapshotSection{Dir: "/var/lib/cardinal", DBFilename: "dump.rdb"}
	want := filepath.Join("/var/lib/cardinal", "dump.rdb")
	if got := s.Path(); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	empty := SnapshotSection{Dir: "/var/lib/cardinal"}
	if got := empty.Path(); got != "" {
		t.Errorf("Path() without filename = %q, want empty", got)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{
			name:   "defaults",
			mutate: func(cfg *ServerConfig) {},
		},
		{
			name: "missing addr",
			mutate: func(cfg *ServerConfig) {
				cfg.Server.Addr = ""
			},
			wantErr: true,
		},
		{
			name: "message size too small",
			mutate: func(cfg *ServerConfig) {
				cfg.Server.MaxMessageSize = 16
			},
			wantErr: true,
		},
		{
			name: "dbfilename without dir",
			mutate: func(cfg *ServerConfig) {
				cfg.Snapshot.DBFilename = "dump.rdb"
			},
			wantErr: true,
		},
		{
			name: "snapshot fully configured",
			mutate: func(cfg *ServerConfig) {
				cfg.Snapshot.Dir = "/tmp"
				cfg.Snapshot.DBFilename = "dump.rdb"
			},
		},
		{
			name: "valid replica of",
			mutate: func(cfg *ServerConfig) {
				cfg.Replication.ReplicaOf = "localhost 6379"
			},
		},
		{
			name: "malformed replica of",
			mutate: func(cfg *ServerConfig) {
				cfg.Replication.ReplicaOf = "localhost:6379"
			},
			wantErr: true,
		},
		{
			name: "metrics enabled without addr",
			mutate: func(cfg *ServerConfig) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
