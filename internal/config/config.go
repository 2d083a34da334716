// Package config loads the "asab:raft" configuration section described in
// spec §6: listen addresses, the peer list, the RPC payload ceiling, and
// the three Raft timing parameters. Layered the way the teacher's
// cmd/server/main.go layers its own config — cobra flags with
// environment-variable defaults — enriched with viper so the same keys can
// also come from a YAML file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raftkit/raftd/internal/raft"
	"github.com/raftkit/raftd/internal/rpc"
)

// Config is the fully resolved, validated configuration for one raftd
// process.
type Config struct {
	Listen            []rpc.ListenAddr
	Peers             []string
	MaxRPCPayloadSize int
	Raft              raft.Config

	DBDriver string
	DBDSN    string

	EncryptionKey string

	LogLevel string
	Syslog   bool

	AdminAddr string
	ShipURL   string
}

// BindFlags registers every config key as a persistent flag on root, with
// an RAFTD_-prefixed environment variable as its default, mirroring the
// teacher's envOrDefault pattern. Call Load after cmd.Execute has parsed
// flags.
func BindFlags(root *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("RAFTD")
	v.AutomaticEnv()
	v.SetConfigName("raftd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional: absence is not an error

	flags := root.PersistentFlags()
	flags.String("listen", v.GetString("asab.raft.listen"), "newline-separated \"<addr> <port>\" list of local bind addresses")
	flags.String("peers", v.GetString("asab.raft.peers"), "newline-separated \"<addr> <port>\" list of peer addresses")
	flags.Int("max-rpc-payload-size", firstNonZero(v.GetInt("asab.raft.max_rpc_payload_size"), 65507), "maximum accepted UDP datagram size in bytes")
	flags.Int("election-timeout-min", firstNonZero(v.GetInt("asab.raft.election_timeout_min"), 150), "minimum election timeout in milliseconds")
	flags.Int("election-timeout-max", firstNonZero(v.GetInt("asab.raft.election_timeout_max"), 300), "maximum election timeout in milliseconds")
	flags.Int("heartbeat-timeout", firstNonZero(v.GetInt("asab.raft.heartbeat_timeout"), 50), "leader heartbeat interval in milliseconds")

	flags.String("db-driver", envOrDefault("RAFTD_DB_DRIVER", "sqlite"), "journal database driver (sqlite or postgres)")
	flags.String("db-dsn", envOrDefault("RAFTD_DB_DSN", "./raftd.db"), "journal database DSN or file path for sqlite")
	flags.String("encryption-key", envOrDefault("RAFTD_ENCRYPTION_KEY", ""), "datagram payload encryption key (empty disables encryption)")
	flags.String("log-level", envOrDefault("RAFTD_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flags.Bool("syslog", envOrDefault("RAFTD_SYSLOG", "false") == "true", "also ship logs to the local syslog daemon")
	flags.String("admin-addr", envOrDefault("RAFTD_ADMIN_ADDR", ":8090"), "admin HTTP listen address")
	flags.String("ship-url", envOrDefault("RAFTD_SHIP_URL", ""), "HTTP sink for shipped log batches (empty disables shipping)")
}

// Load reads every flag registered by BindFlags into a validated Config.
func Load(cmd *cobra.Command) (*Config, error) {
	flags := cmd.Flags()

	listenRaw, _ := flags.GetString("listen")
	peersRaw, _ := flags.GetString("peers")
	maxPayload, _ := flags.GetInt("max-rpc-payload-size")
	electionMin, _ := flags.GetInt("election-timeout-min")
	electionMax, _ := flags.GetInt("election-timeout-max")
	heartbeat, _ := flags.GetInt("heartbeat-timeout")

	listen, err := parseListenList(listenRaw)
	if err != nil {
		return nil, fmt.Errorf("config: listen: %w", err)
	}
	peers, err := parseAddrList(peersRaw)
	if err != nil {
		return nil, fmt.Errorf("config: peers: %w", err)
	}
	if maxPayload <= 0 {
		return nil, fmt.Errorf("config: max_rpc_payload_size must be > 0")
	}

	raftCfg := raft.Config{
		ElectionTimeoutMin: electionMin,
		ElectionTimeoutMax: electionMax,
		HeartbeatTimeout:   heartbeat,
	}
	if err := raftCfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	dbDriver, _ := flags.GetString("db-driver")
	dbDSN, _ := flags.GetString("db-dsn")
	encKey, _ := flags.GetString("encryption-key")
	logLevel, _ := flags.GetString("log-level")
	syslog, _ := flags.GetBool("syslog")
	adminAddr, _ := flags.GetString("admin-addr")
	shipURL, _ := flags.GetString("ship-url")

	return &Config{
		Listen:            listen,
		Peers:             peers,
		MaxRPCPayloadSize: maxPayload,
		Raft:              raftCfg,
		DBDriver:          dbDriver,
		DBDSN:             dbDSN,
		EncryptionKey:     encKey,
		LogLevel:          logLevel,
		Syslog:            syslog,
		AdminAddr:         adminAddr,
		ShipURL:           shipURL,
	}, nil
}

// parseListenList parses a newline-separated "<addr> <port>" list into
// ListenAddr values, matching the wire format of the original asab config
// file (lists are newline-delimited strings, not YAML sequences).
func parseListenList(raw string) ([]rpc.ListenAddr, error) {
	var out []rpc.ListenAddr
	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("expected \"<addr> <port>\", got %q", line)
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad port in %q: %w", line, err)
		}
		out = append(out, rpc.ListenAddr{Addr: fields[0], Port: port})
	}
	return out, nil
}

// parseAddrList parses the same newline-separated format into plain
// "host:port" strings for raft.NewService's peer list.
func parseAddrList(raw string) ([]string, error) {
	listen, err := parseListenList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(listen))
	for _, l := range listen {
		out = append(out, fmt.Sprintf("%s:%d", l.Addr, l.Port))
	}
	return out, nil
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
