// Command simptcpd runs a SimpTCP echo server: it listens on one SimpTCP
// port and echoes back every segment it receives on each accepted
// connection, demonstrating the protocol entity's accept/recv/send loop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simptcp/metrics"
	"simptcp/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on (optional)")
	flag.Parse()

	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simptcpd: load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	conn, err := net.ListenPacket("udp", cfg.ListenUDPAddr)
	if err != nil {
		logger.Error("listen", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	ent := transport.NewEntity(conn, transport.Config{
		DefaultBacklog: cfg.Backlog,
		InitialRTT:     cfg.InitialRTT,
		MaxRetransmits: cfg.MaxRetransmit,
		Logger:         logger,
	})
	ent.Start()
	defer ent.Close()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(ent))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server", slog.String("err", err.Error()))
			}
		}()
	}

	listenFD, err := ent.Create()
	if err != nil {
		logger.Error("create", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err := ent.Bind(listenFD, cfg.SimPort); err != nil {
		logger.Error("bind", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if err := ent.Listen(listenFD, cfg.Backlog); err != nil {
		logger.Error("listen", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger.Info("simptcpd listening", slog.String("udp_addr", cfg.ListenUDPAddr), slog.Int("sim_port", int(cfg.SimPort)))

	for {
		fd, remote, err := ent.Accept(listenFD)
		if err != nil {
			logger.Error("accept", slog.String("err", err.Error()))
			continue
		}
		go serve(ent, fd, remote, logger)
	}
}

func serve(ent *transport.Entity, fd int, remote netip.AddrPort, logger *slog.Logger) {
	logger.Info("connection accepted", slog.Int("fd", fd), slog.Any("remote", remote))
	buf := make([]byte, 1500)
	for {
		n, err := ent.Recv(fd, buf)
		if err != nil {
			logger.Info("connection closed", slog.Int("fd", fd), slog.String("err", err.Error()))
			return
		}
		if n == 0 {
			_ = ent.Shutdown(fd, 0)
			ent.Close(fd)
			return
		}
		if _, err := ent.Send(fd, buf[:n]); err != nil {
			logger.Info("send failed", slog.Int("fd", fd), slog.String("err", err.Error()))
			return
		}
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
