// Package config defines the server configuration structure.
package config

import "path/filepath"

// ServerConfig is the root configuration for cardinal-server.
type ServerConfig struct {
	Server      ServerSection      `koanf:"server"`
	Snapshot    SnapshotSection    `koanf:"snapshot"`
	Replication ReplicationSection `koanf:"replication"`
	Metrics     MetricsSection     `koanf:"metrics"`
	Log         LogSection         `koanf:"log"`
}

// ServerSection configures the client-facing listener.
type ServerSection struct {
	Addr           string `koanf:"addr"`
	MaxMessageSize int    `koanf:"max_message_size"`
}

// SnapshotSection configures snapshot loading.
type SnapshotSection struct {
	Dir        string `koanf:"dir"`
	DBFilename string `koanf:"dbfilename"`
}

// Path returns the full snapshot file path, or "" when no
// filename is configured.
func (s SnapshotSection) Path() string {
	if s.DBFilename == "" {
		return ""
	}
	return filepath.Join(s.Dir, s.DBFilename)
}

// ReplicationSection configures the replication role.
type ReplicationSection struct {
	// ReplicaOf holds the "host port" of the master this server
	// replicates from. Empty means the server is a master.
	ReplicaOf string `koanf:"replica_of"`
}

// MetricsSection configures the Prometheus metrics endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
