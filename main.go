package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/OpenRedButtonProject/orb-core/internal/blob"
	"github.com/OpenRedButtonProject/orb-core/internal/browser"
	"github.com/OpenRedButtonProject/orb-core/internal/httpapi"
	"github.com/OpenRedButtonProject/orb-core/internal/manager"
	"github.com/OpenRedButtonProject/orb-core/internal/store"
	"github.com/OpenRedButtonProject/orb-core/internal/wsserver"
)

// Version is the build version reported by the "version" and "status" CLI
// subcommands.
const Version = "0.1.0"

func main() {
	addr := flag.String("addr", ":8443", "HTTPS listen address for the JSON-RPC WebSocket and REST diagnostics surface")
	dbPath := flag.String("db", "orb.db", "SQLite database path for the diagnostic audit trail")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	wsPath := flag.String("ws-path", "/hbbtv", "WebSocket endpoint path for ordinary HbbTV applications")
	opAppPath := flag.String("ws-opapp-path", "/hbbtv-opapp", "WebSocket endpoint path for the privileged operator application")
	parentalAge := flag.Int("parental-age", 0, "parental control age threshold (0 disables age restriction)")
	parentalRegion := flag.String("parental-region", "", "parental control two-letter region code")
	parentalRegion3 := flag.String("parental-region3", "", "parental control three-letter region code")
	flag.Parse()

	// Subcommands (version, status, aitdump, settings) run against the
	// already-parsed flags instead of their own argument pass, so "settings"
	// can report the same parental-control values the daemon would start
	// with.
	if args := flag.Args(); len(args) > 0 {
		cfg := runtimeConfig{
			addr: *addr, dbPath: *dbPath, wsPath: *wsPath, opAppPath: *opAppPath,
			parentalAge: *parentalAge, parentalRegion: *parentalRegion, parentalRegion3: *parentalRegion3,
		}
		if RunCLI(args, cfg) {
			return
		}
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	defer st.Close()

	blobsDir := filepath.Join(filepath.Dir(*dbPath), "blobs")
	blobs, err := blob.NewStore(blobsDir, st)
	if err != nil {
		log.Fatalf("[blob] %v", err)
	}

	tlsHostname := ""
	if host, _, err := net.SplitHostPort(*addr); err == nil && host != "" {
		tlsHostname = host
	}
	tlsConfig, fingerprint, err := generateTLSConfig(*certValidity, tlsHostname)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	slog.Info("tls certificate generated", "fingerprint", fingerprint)

	term := browser.NewTerminal(browser.ParentalControl{
		Age:     *parentalAge,
		Region:  *parentalRegion,
		Region3: *parentalRegion3,
	})
	mgr := manager.New(term, manager.WithRecorder(store.NewAsyncRecorder(st)))

	ws := wsserver.NewServer(*wsPath, *opAppPath)
	api := httpapi.New(mgr, st, ws, blobs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("server shutting down")
		cancel()
	}()

	slog.Info("server listening", "addr", *addr, "ws_path", *wsPath, "opapp_path", *opAppPath)
	if err := api.RunTLS(ctx, *addr, tlsConfig); err != nil {
		log.Fatalf("[server] %v", err)
	}
}
