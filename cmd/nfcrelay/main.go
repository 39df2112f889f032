// Command nfcrelay relays ISO 14443-4 frames between a card-facing
// Initiator device and a reader-facing emulated Target device, optionally
// recording or replaying a frame log and exposing a live websocket tap.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dotside-studios/nfcrelay/buildinfo"
	"github.com/dotside-studios/nfcrelay/relay"
	"github.com/dotside-studios/nfcrelay/relay/libnfcdriver"
	"github.com/dotside-studios/nfcrelay/relaymonitor"
	"github.com/dotside-studios/nfcrelay/relaysession"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		initiatorIdx = flag.Int("initiator", 0, "device index for the card-facing Initiator (reader role)")
		targetIdx    = flag.Int("target", 1, "device index for the reader-facing emulated Target (card role)")
		easyFraming  = flag.Bool("easy-framing", true, "use easy-framing (driver-abstracted APDU) instead of raw PCB framing")
		appleTransport = flag.Bool("apple-transport", false, "send the Apple travel-card activation pre-sequence during discovery")
		logPath      = flag.String("log", "", "path to save the session's frame log (empty disables persistence)")
		replayPath   = flag.String("replay", "", "replay a previously recorded frame log instead of using a live initiator")
		listDevices  = flag.Bool("list-devices", false, "list available libnfc device connection strings and exit")
		monitorAddr  = flag.String("monitor-addr", "", "if set, serve a live websocket frame tap on this address (e.g. :8765)")
		perCallTimeoutMs = flag.Int("call-timeout", 2000, "per-call driver timeout in milliseconds")
		sessionTimeoutMs = flag.Int("session-timeout", 0, "overall session deadline in milliseconds (0 = none)")
		discoveryTimeoutMs = flag.Int("discovery-timeout", 0, "card discovery timeout in milliseconds (0 = poll indefinitely)")
		showVersion  = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.BuildInfo())
		return 0
	}

	if *listDevices {
		devices, err := libnfcdriver.ListDevices(3)
		if err != nil {
			log.Printf("nfcrelay: list devices: %v", err)
			return 1
		}
		for i, d := range devices {
			fmt.Printf("%d: %s\n", i, d)
		}
		return 0
	}

	cfg := relaysession.DefaultConfig()
	cfg.InitiatorIndex = *initiatorIdx
	cfg.TargetIndex = *targetIdx
	cfg.EasyFraming = *easyFraming
	cfg.AppleTransport = *appleTransport
	cfg.LogPath = *logPath
	cfg.ReplayPath = *replayPath
	cfg.PerCallTimeoutMs = *perCallTimeoutMs
	cfg.SessionTimeoutMs = *sessionTimeoutMs
	cfg.DiscoveryTimeoutMs = *discoveryTimeoutMs
	if *replayPath != "" {
		cfg.InitiatorIndex = -1
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	controller := relaysession.NewController(cfg, logger)

	var sink relay.FrameSink
	if *monitorAddr != "" {
		hub := relaymonitor.NewHub(logger)
		mux := http.NewServeMux()
		mux.Handle("/frames", hub)
		server := &http.Server{Addr: *monitorAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("nfcrelay: monitor server: %v", err)
			}
		}()
		defer server.Close()

		if zsrv, err := relaymonitor.Advertise(buildinfo.DisplayName, monitorPort(*monitorAddr)); err != nil {
			logger.Printf("nfcrelay: mDNS advertisement failed: %v", err)
		} else {
			defer zsrv.Shutdown()
		}
		sink = hub
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	var interrupted atomic.Bool
	go func() {
		<-sigChan
		interrupted.Store(true)
		logger.Println("nfcrelay: shutdown signal received, stopping relay")
		cancel()
	}()

	summary, err := controller.Run(ctx, sink)
	if err != nil {
		logger.Printf("nfcrelay: %v", err)
		return 1
	}

	fmt.Println(summary.String())

	if interrupted.Load() {
		return 130
	}
	return 0
}

// monitorPort extracts the numeric port from an address of the form
// ":8765" or "host:8765" for mDNS advertisement, defaulting to 8765 if it
// cannot be parsed.
func monitorPort(addr string) int {
	port := 8765
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			fmt.Sscanf(addr[i+1:], "%d", &port)
			break
		}
	}
	return port
}
