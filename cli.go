package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/OpenRedButtonProject/orb-core/internal/ait"
	"github.com/OpenRedButtonProject/orb-core/internal/store"
)

// runtimeConfig carries the already-parsed daemon flags into subcommand
// handlers so "settings" reports exactly what the daemon would start with.
type runtimeConfig struct {
	addr            string
	dbPath          string
	wsPath          string
	opAppPath       string
	parentalAge     int
	parentalRegion  string
	parentalRegion3 string
}

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, cfg runtimeConfig) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("orb-core %s\n", Version)
		return true
	case "status":
		return cliStatus(cfg.dbPath)
	case "aitdump":
		return cliAITDump(args[1:])
	case "settings":
		return cliSettings(cfg)
	default:
		return false
	}
}

// cliSettings prints the daemon's effective configuration without starting
// it, for operators checking flag wiring before a deployment.
func cliSettings(cfg runtimeConfig) bool {
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Listen address: %s\n", cfg.addr)
	fmt.Printf("Database: %s\n", cfg.dbPath)
	fmt.Printf("WebSocket path (app): %s\n", cfg.wsPath)
	fmt.Printf("WebSocket path (opapp): %s\n", cfg.opAppPath)
	fmt.Printf("Parental control age: %d\n", cfg.parentalAge)
	fmt.Printf("Parental control region: %s (3-letter: %s)\n", cfg.parentalRegion, cfg.parentalRegion3)
	return true
}

func cliStatus(dbPath string) bool {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	events, err := st.RecentAITEvents(ctx, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	transitions, err := st.RecentAppTransitions(ctx, 5)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Recent AIT events (%d):\n", len(events))
	for _, e := range events {
		fmt.Printf("  [%d] onid=%#x tsid=%#x sid=%#x %s: %s\n", e.TS, e.ONID, e.TSID, e.SID, e.Source, e.Detail)
	}
	fmt.Printf("Recent application transitions (%d):\n", len(transitions))
	for _, t := range transitions {
		fmt.Printf("  [%d] app=%#x org=%#x %s (%s)\n", t.TS, t.AppID, t.OrgID, t.Event, t.Reason)
	}
	return true
}

// cliAITDump decodes an AIT file from disk (binary section or XML document)
// and prints the resulting table as indented JSON, for inspecting captured
// AIT payloads offline.
func cliAITDump(args []string) bool {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: orb-core aitdump [--xml] <file>")
		os.Exit(1)
	}

	xml := false
	path := args[0]
	if args[0] == "--xml" {
		xml = true
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: orb-core aitdump --xml <file>")
			os.Exit(1)
		}
		path = args[1]
	} else if strings.HasSuffix(strings.ToLower(path), ".xml") {
		xml = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	var table *ait.Table
	if xml {
		table, err = ait.DecodeXML(data)
	} else {
		table, _, err = ait.DecodeBinarySection(nil, data)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode failed: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
	return true
}
