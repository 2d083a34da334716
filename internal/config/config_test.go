package config

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestParseListenList(t *testing.T) {
	got, err := parseListenList("127.0.0.1 9001\n0.0.0.0 9002\n")
	if err != nil {
		t.Fatalf("parseListenList error = %v", err)
	}
	if len(got) != 2 || got[0].Addr != "127.0.0.1" || got[0].Port != 9001 {
		t.Fatalf("parseListenList = %+v", got)
	}
}

func TestParseListenListSkipsBlankLines(t *testing.T) {
	got, err := parseListenList("127.0.0.1 9001\n\n   \n")
	if err != nil {
		t.Fatalf("parseListenList error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected blank lines skipped, got %d entries", len(got))
	}
}

func TestParseListenListRejectsMalformedLine(t *testing.T) {
	if _, err := parseListenList("only-one-field"); err == nil {
		t.Fatal("expected an error for a line missing the port field")
	}
	if _, err := parseListenList("127.0.0.1 not-a-port"); err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
}

func TestParseAddrList(t *testing.T) {
	got, err := parseAddrList("10.0.0.1 9001\n10.0.0.2 9001\n")
	if err != nil {
		t.Fatalf("parseAddrList error = %v", err)
	}
	want := []string{"10.0.0.1:9001", "10.0.0.2:9001"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("parseAddrList = %v, want %v", got, want)
	}
}

func TestFirstNonZero(t *testing.T) {
	if got := firstNonZero(0, 42); got != 42 {
		t.Fatalf("firstNonZero(0, 42) = %d, want 42", got)
	}
	if got := firstNonZero(7, 42); got != 7 {
		t.Fatalf("firstNonZero(7, 42) = %d, want 7", got)
	}
}

func TestLoadRejectsZeroPayloadSize(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	BindFlags(cmd)
	if err := cmd.Flags().Set("max-rpc-payload-size", "0"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := cmd.Flags().Set("listen", "127.0.0.1 9001"); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected Load to reject a zero max-rpc-payload-size")
	}
}

func TestLoadResolvesDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	BindFlags(cmd)
	if err := cmd.Flags().Set("listen", "127.0.0.1 9001"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := cmd.Flags().Set("peers", "127.0.0.1 9002"); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if len(cfg.Listen) != 1 || cfg.Listen[0].Port != 9001 {
		t.Fatalf("cfg.Listen = %+v", cfg.Listen)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0] != "127.0.0.1:9002" {
		t.Fatalf("cfg.Peers = %v", cfg.Peers)
	}
	if err := cfg.Raft.Validate(); err != nil {
		t.Fatalf("default Raft config should be valid, got %v", err)
	}
}
