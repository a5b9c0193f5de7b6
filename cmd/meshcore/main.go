// meshcore is the mesh-networking firmware core ported to a
// long-running host process: it assembles the packet pipeline (C1-C5),
// the relay engine (C6/C7), a PHY transport (A3/A4), the relay audit
// log (A5), and the stats export surfaces (A6/A7), then runs until
// signaled.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatlinnewhouse/meshcore/internal/audit"
	"github.com/gatlinnewhouse/meshcore/internal/bus"
	"github.com/gatlinnewhouse/meshcore/internal/config"
	"github.com/gatlinnewhouse/meshcore/internal/entropy"
	"github.com/gatlinnewhouse/meshcore/internal/meshpacket"
	"github.com/gatlinnewhouse/meshcore/internal/nodedb"
	"github.com/gatlinnewhouse/meshcore/internal/phy"
	"github.com/gatlinnewhouse/meshcore/internal/processor"
	"github.com/gatlinnewhouse/meshcore/internal/radio"
	"github.com/gatlinnewhouse/meshcore/internal/relay"
	"github.com/gatlinnewhouse/meshcore/internal/statsexport"
)

const version = "0.1.0"

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "meshcore",
		Short: "Meshtastic-protocol mesh-networking firmware core",
		Long:  "Packet pipeline and relay engine for a LoRa mesh node, run as a host process.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Assemble the core and run until signaled",
		RunE:  runCore,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("meshcore " + version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/meshcore/config.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ourNodeID := cfg.Node.ID
	ent := entropy.Crypto{}
	if ourNodeID == 0 {
		ourNodeID, err = entropy.Uint32(ent)
		if err != nil {
			return fmt.Errorf("failed to derive node id from entropy source: %w", err)
		}
		log.Printf("meshcore: derived node id %#08x from entropy source", ourNodeID)
	}

	keyMaterial, err := cfg.ChannelKeyBytes()
	if err != nil {
		return err
	}
	channelKey, err := meshpacket.NewChannelKey(keyMaterial, cfg.Node.ChannelSelector)
	if err != nil {
		return fmt.Errorf("failed to construct channel key: %w", err)
	}
	cipher, err := meshpacket.NewCipher(channelKey)
	if err != nil {
		return fmt.Errorf("failed to construct channel cipher: %w", err)
	}

	// Packet bus (C4), node database (C5).
	packetBus := bus.New()
	nodeDB := nodedb.New(nodedb.DefaultCapacity)

	// Relay audit log (A5); a nil sink leaves the relay engine's
	// behavior unaffected if it cannot be opened.
	var auditLog *audit.Log
	if cfg.Storage.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.Storage.AuditLogPath)
		if err != nil {
			log.Printf("meshcore: failed to open audit log, continuing without it: %v", err)
		} else {
			defer auditLog.Close()
		}
	}

	// PHY transport (A3 or A4).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := phy.Params{
		FrequencyHz:     cfg.Radio.FrequencyHz,
		SpreadingFactor: cfg.Radio.SpreadingFactor,
		BandwidthHz:     cfg.Radio.BandwidthHz,
		CodingRate:      cfg.Radio.CodingRate,
		SyncWord:        cfg.Radio.SyncWord,
		PreambleSymbols: cfg.Radio.Preamble,
		TxPowerDbm:      cfg.Radio.TxPowerDbm,
	}

	var driver phy.Driver
	switch cfg.Transport.Mode {
	case "concentrator":
		driver, err = phy.NewConcentrator(ctx, phy.ConcentratorConfig{
			EventAddr:   cfg.Transport.EventAddr,
			CommandAddr: cfg.Transport.ConcentratorAddr,
			Params:      params,
			BusyHoldoff: 500 * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("failed to start concentrator transport: %w", err)
		}
	default:
		driver = phy.NewLoopback(params)
	}
	defer driver.Close()

	radioTask := radio.New(driver, cipher, packetBus)

	var auditSink relay.AuditSink
	if auditLog != nil {
		auditSink = auditLog
	}

	relayEngine := relay.New(relay.Config{
		OurNodeID: ourNodeID,
		LoRa: relay.LoRaParams{
			SpreadingFactor: int(cfg.Radio.SpreadingFactor),
			BandwidthHz:     int(cfg.Radio.BandwidthHz),
			CodingRate:      int(cfg.Radio.CodingRate),
			PreambleSymbols: int(cfg.Radio.Preamble),
		},
		Entropy:   ent,
		AuditSink: auditSink,
		RXBoost:   cfg.Radio.RXBoost,
	}, time.Now())

	processorTask := processor.New(nodeDB)

	// Stats export (A6/A7), reading the relay engine's live counters.
	statsSource := statsexport.SnapshotFunc(func() statsexport.StatsSnapshot {
		s := relayEngine.Stats()
		return statsexport.StatsSnapshot{
			RecordedAtUnixMs:        time.Now().UnixMilli(),
			PacketsReceived:         s.PacketsReceived,
			PacketsQueued:           s.PacketsQueued,
			PacketsTransmitted:      s.PacketsTransmitted,
			PacketsDropped:          s.PacketsDropped,
			PacketsExpired:          s.PacketsExpired,
			ChannelBusyEvents:       s.ChannelBusyEvents,
			DutyCycleBlocks:         s.DutyCycleBlocks,
			ImplicitAcks:            s.ImplicitAcks,
			LoopPreventionDrops:     s.LoopPreventionDrops,
			Retransmissions:         s.Retransmissions,
			CurrentDutyCyclePercent: s.CurrentDutyCyclePercent,
		}
	})

	var grpcServer *statsexport.GRPCServer
	if cfg.Stats.GRPCAddr != "" {
		grpcServer, err = statsexport.NewGRPCServer(cfg.Stats.GRPCAddr, statsSource, time.Second)
		if err != nil {
			log.Printf("meshcore: failed to start stats gRPC server, continuing without it: %v", err)
		} else {
			go func() {
				if err := grpcServer.Serve(); err != nil {
					log.Printf("meshcore: stats gRPC server stopped: %v", err)
				}
			}()
			defer grpcServer.Stop()
		}
	}

	var wsServer *statsexport.WSServer
	if cfg.Stats.WSAddr != "" {
		wsServer = statsexport.NewWSServer(cfg.Stats.WSAddr, statsSource, time.Second)
		go func() {
			if err := wsServer.ListenAndServe(); err != nil {
				log.Printf("meshcore: stats websocket server stopped: %v", err)
			}
		}()
		defer wsServer.Close()
	}

	if auditLog != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					auditLog.RecordSnapshot(audit.SnapshotFromStats(relayEngine.Stats(), time.Now()))
				}
			}
		}()
	}

	go radioTask.Run(ctx)
	go processorTask.Run(ctx, packetBus)
	go relayEngine.Run(ctx, packetBus, radioTask)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("meshcore: running as node %#08x, transport=%s", ourNodeID, orDefault(cfg.Transport.Mode, "loopback"))
	sig := <-sigChan
	log.Printf("meshcore: received signal %v, shutting down...", sig)
	cancel()

	log.Println("meshcore: shutdown complete")
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
