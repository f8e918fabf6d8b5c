// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifySnapshot(&cfg.Snapshot); err != nil {
		return err
	}
	if err := verifyReplication(&cfg.Replication); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.MaxMessageSize < 64 {
		return fmt.Errorf("server.max_message_size must be at least 64, got %d", cfg.MaxMessageSize)
	}
	return nil
}

func verifySnapshot(cfg *SnapshotSection) error {
	if cfg.DBFilename != "" && cfg.Dir == "" {
		return errors.New("snapshot.dir is required when snapshot.dbfilename is set")
	}
	return nil
}

func verifyReplication(cfg *ReplicationSection) error {
	if cfg.ReplicaOf == "" {
		return nil
	}
	parts := strings.Fields(cfg.ReplicaOf)
	if len(parts) != 2 {
		return fmt.Errorf("replication.replica_of must be %q, got %q", "host port", cfg.ReplicaOf)
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if cfg.Enabled && cfg.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}
