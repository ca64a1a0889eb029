// Command collectord is the collector process (C5): it reads framed audit
// records from its inherited pipe (spec.md §4.1), appends them to the
// archive under -dir, and applies rotation/retention on its own schedule.
// It is meant to be forked by internal/supervisor, which holds the pipe's
// write end across restarts, but can also be run directly against a
// pre-opened fd 3 for local testing.
package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbaudit/collector/internal/collector"
	"github.com/dbaudit/collector/internal/config"
	"github.com/dbaudit/collector/internal/logging"
	"github.com/dbaudit/collector/internal/metrics"
	"github.com/dbaudit/collector/internal/queryapi"
)

// tickInterval is how often the main loop checks rotation/retention when
// the pipe itself is quiet; it does not gate how quickly a completed
// record is appended, which happens inline as each chunk arrives.
const tickInterval = time.Second

func main() {
	dir := flag.String("dir", ".", "audit archive directory")
	configPath := flag.String("config", "", "HCL configuration file")
	pipeFD := flag.Int("fd", 3, "inherited pipe read-end file descriptor")
	logFile := flag.String("log-file", "", "reopen stdout/stderr against this file instead of whatever was inherited")
	flag.Parse()

	logging.CaptureStdio(*logFile)
	logging.RedirectStdLog()
	log := logging.Default().WithComponent("collectord")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	configureSyslog(cfg)
	log = logging.Default().WithComponent("collectord")

	col, err := collector.Open(*dir, cfg.ToCollectorPolicy())
	if err != nil {
		log.Error("fatal error opening audit archive", "error", err)
		os.Exit(1)
	}

	pipe := os.NewFile(uintptr(*pipeFD), "audit-pipe")
	if pipe == nil {
		log.Error("inherited pipe descriptor is invalid", "fd", *pipeFD)
		os.Exit(1)
	}

	startAdminAPI(*dir, cfg, log)

	maxPayload := defaultMaxPayload()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGQUIT,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGALRM, syscall.SIGPIPE)

	chunks, readErrs := startReader(pipe, maxPayload)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	exitCode := runLoop(col, cfg, *configPath, log, maxPayload, sigCh, chunks, readErrs, ticker.C)
	os.Exit(exitCode)
}

// runLoop is the collector's event loop (spec.md §4.5): it multiplexes
// incoming pipe data, the periodic rotation/retention tick, and control
// signals, returning the process's exit code once the pipe reaches EOF or
// a graceful-shutdown signal arrives.
func runLoop(
	col *collector.Collector,
	cfg *config.Config,
	configPath string,
	log *logging.Logger,
	maxPayload int,
	sigCh <-chan os.Signal,
	chunks <-chan []byte,
	readErrs <-chan error,
	ticks <-chan time.Time,
) int {
	residue := make([]byte, 0, maxPayload)

	shutdown := func() int {
		if err := col.Shutdown(); err != nil {
			log.Error("error during shutdown", "error", err)
			return 1
		}
		return 0
	}

	for {
		select {
		case data, ok := <-chunks:
			if !ok {
				log.Info("pipe closed, shutting down")
				return shutdown()
			}
			residue = append(residue, data...)
			residue = consumeChunks(col, residue, maxPayload, log)

		case err := <-readErrs:
			log.Error("pipe read error", "error", err)
			if ferr := col.FlushResidue(); ferr != nil {
				log.Error("failed to flush residue on read error", "error", ferr)
			}
			return shutdown()

		case <-ticks:
			if err := col.Tick(false); err != nil {
				log.Error("tick failed", "error", err)
			}

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				newCfg, err := loadConfig(configPath)
				if err != nil {
					log.Error("failed to reload configuration, keeping current policy", "error", err)
					metrics.Get().RecordReload(err)
					continue
				}
				cfg = newCfg
				configureSyslog(cfg)
				log = logging.Default().WithComponent("collectord")
				err = col.ReloadConfig(cfg.ToCollectorPolicy())
				if err != nil {
					log.Error("failed to apply reloaded configuration", "error", err)
				}
				metrics.Get().RecordReload(err)
			case syscall.SIGUSR1:
				if err := col.Tick(true); err != nil {
					log.Error("forced rotation failed", "error", err)
				}
			case syscall.SIGQUIT:
				log.Info("received shutdown signal")
				return shutdown()
			default:
				// SIGINT/SIGTERM/SIGALRM/SIGPIPE: ignored per spec.md §4.5 —
				// the supervisor controls this process's lifetime.
			}
		}
	}
}

// consumeChunks repeatedly hands buf to col.HandleChunk until it reports
// that it needs more bytes, returning whatever tail remains unconsumed.
func consumeChunks(col *collector.Collector, buf []byte, maxPayload int, log *logging.Logger) []byte {
	for len(buf) > 0 {
		n, stray, err := col.HandleChunk(buf, maxPayload)
		if err != nil {
			log.Error("failed to append record", "error", err)
		}
		if n == 0 {
			break
		}
		if stray {
			log.Warn("writing stray bytes from pipe verbatim", "count", n)
		}
		buf = buf[n:]
	}
	return buf
}

// startReader launches a goroutine that copies raw bytes off pipe into a
// channel of chunks, closing it on EOF or sending the terminal error
// otherwise.
func startReader(pipe *os.File, maxPayload int) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		readBuf := make([]byte, maxPayload+64)
		for {
			n, err := pipe.Read(readBuf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, readBuf[:n])
				chunks <- out
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- err
				}
				return
			}
		}
	}()
	return chunks, errs
}

// startAdminAPI launches the query/delete/tail HTTP surface in the
// background, bound to the address in the config at startup. A SIGHUP
// config reload updates rotation/retention policy but does not restart
// this listener — changing the admin API's bind address or token requires
// restarting the process.
func startAdminAPI(dir string, cfg *config.Config, log *logging.Logger) {
	addr := cfg.AdminAPI.ListenAddr
	if addr == "" {
		return
	}
	srv := queryapi.NewServer(queryapi.Options{
		Dir:         dir,
		BearerToken: cfg.AdminAPI.BearerToken,
		Logger:      log,
	})
	go func() {
		if err := srv.Start(addr); err != nil {
			log.Error("admin API server exited", "error", err)
		}
	}()
}

// loadConfig loads the HCL file at path, or falls back to the built-in
// defaults when no -config flag is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Defaults()
		return &cfg, nil
	}
	return config.Load(path)
}

// configureSyslog switches the default logger's output to also forward to
// a remote syslog server when the syslog block is present and enabled,
// leaving the existing stderr/capture output in place. A failed dial logs
// a warning and falls back to stderr-only rather than aborting startup.
func configureSyslog(cfg *config.Config) {
	if cfg.Syslog == nil || !cfg.Syslog.Enabled {
		return
	}

	writer, err := logging.NewSyslogWriter(logging.SyslogConfig{
		Enabled:  true,
		Host:     cfg.Syslog.Host,
		Port:     cfg.Syslog.Port,
		Protocol: cfg.Syslog.Protocol,
		Tag:      cfg.Syslog.Tag,
		Facility: cfg.Syslog.Facility,
	})
	if err != nil {
		logging.Default().Warn("failed to initialize syslog, logging to stderr only", "error", err)
		return
	}

	logCfg := logging.DefaultConfig()
	logCfg.Output = logging.MultiWriter(logCfg.Output, writer)
	logging.SetDefault(logging.New(logCfg))
	logging.Default().Info("syslog enabled", "host", cfg.Syslog.Host, "port", cfg.Syslog.Port)
}

func defaultMaxPayload() int {
	// POSIX guarantees PIPE_BUF (at least 512 bytes) atomic writes; without
	// a portable way to read the pipe's actual buffer size this process did
	// not create itself, assume the conservative floor every platform honors.
	return 512 - 13 // wire.MinChunkSize - wire.FrameHeaderSize, spelled out to avoid importing wire just for two constants
}
