// Package config loads the static cluster topology and per-node settings
// that every node in a raftkv cluster needs at startup.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Environment variable names for the per-process operator overrides named
// in spec section 2's ambient stack: data directory, listen addresses,
// and log level all have a YAML field but can be overridden without
// editing the cluster file, e.g. for container deployments.
const (
	EnvDataDir  = "RAFTKV_DATA_DIR"
	EnvHTTPAddr = "RAFTKV_HTTP_ADDR"
	EnvRaftAddr = "RAFTKV_RAFT_ADDR"
	EnvLogLevel = "RAFTKV_LOG_LEVEL"
)

// Timing defaults match spec: T_min/T_max suggested 150-300ms, H << T_min.
const (
	DefaultElectionTimeoutMin = 150 * time.Millisecond
	DefaultElectionTimeoutMax = 300 * time.Millisecond
	DefaultHeartbeatInterval  = 50 * time.Millisecond
	DefaultRPCTimeout         = 100 * time.Millisecond
	DefaultMaxCacheSize       = 10000
)

// PeerConfig is one cluster member's address, as a static peer table entry.
type PeerConfig struct {
	ID         string `yaml:"id"`
	RaftAddr   string `yaml:"raft_addr"`
	ClientAddr string `yaml:"client_addr"`
}

// Cluster is the full static membership table, known identically to every
// node at startup. Majority = len(Peers)/2 + 1.
type Cluster struct {
	Peers []PeerConfig `yaml:"peers"`
}

// Majority returns the strict-majority quorum size for this cluster.
func (c Cluster) Majority() int {
	return len(c.Peers)/2 + 1
}

// Find returns the peer config for id, or false if unknown.
func (c Cluster) Find(id string) (PeerConfig, bool) {
	for _, p := range c.Peers {
		if p.ID == id {
			return p, true
		}
	}
	return PeerConfig{}, false
}

// Timing holds the election/heartbeat knobs named in spec section 5.
type Timing struct {
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	RPCTimeout         time.Duration `yaml:"rpc_timeout"`
}

func (t *Timing) applyDefaults() {
	if t.ElectionTimeoutMin == 0 {
		t.ElectionTimeoutMin = DefaultElectionTimeoutMin
	}
	if t.ElectionTimeoutMax == 0 {
		t.ElectionTimeoutMax = DefaultElectionTimeoutMax
	}
	if t.HeartbeatInterval == 0 {
		t.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if t.RPCTimeout == 0 {
		t.RPCTimeout = DefaultRPCTimeout
	}
}

// Node is the node-local configuration: which peer it is, where it keeps
// its durable state, and how large its cache may grow.
type Node struct {
	ID             string `yaml:"id"`
	DataDir        string `yaml:"data_dir"`
	HTTPAddr       string `yaml:"http_addr"`
	MaxCacheSize   int    `yaml:"max_cache_size"`
	UnsafeVolatile bool   `yaml:"unsafe_volatile"`
	// LogLevel is a zerolog level name (trace/debug/info/warn/error); empty
	// means info. Overridable by RAFTKV_LOG_LEVEL.
	LogLevel string `yaml:"log_level"`
}

// File is the top-level shape of a cluster config YAML file: the static
// peer table shared by every node, this node's local settings, and shared
// timing overrides.
type File struct {
	Cluster Cluster `yaml:"cluster"`
	Node    Node    `yaml:"node"`
	Timing  Timing  `yaml:"timing"`
}

// applyEnvOverrides lets an operator override the per-process knobs named
// in spec section 2 (data directory, listen addresses, log level)
// without editing the cluster file, e.g. when templating it across
// container instances.
func (f *File) applyEnvOverrides() {
	if v := os.Getenv(EnvDataDir); v != "" {
		f.Node.DataDir = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		f.Node.HTTPAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		f.Node.LogLevel = v
	}
	if v := os.Getenv(EnvRaftAddr); v != "" {
		for i := range f.Cluster.Peers {
			if f.Cluster.Peers[i].ID == f.Node.ID {
				f.Cluster.Peers[i].RaftAddr = v
				break
			}
		}
	}
}

// Load reads and parses a cluster config file from path.
func Load(path string) (*File, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	f.applyEnvOverrides()
	f.Timing.applyDefaults()
	if f.Node.MaxCacheSize == 0 {
		f.Node.MaxCacheSize = DefaultMaxCacheSize
	}
	if f.Node.DataDir == "" {
		f.Node.DataDir = "."
	}
	if _, ok := f.Cluster.Find(f.Node.ID); !ok {
		return nil, fmt.Errorf("config: node id %q is not present in cluster.peers", f.Node.ID)
	}
	return &f, nil
}
