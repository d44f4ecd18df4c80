// Command rtimport drives one end-to-end trace import: it feeds a captured
// or relayed RTOS trace stream through the context manager and forwards the
// resulting timeline-per-context model to an ingest backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/matgreaves/run"

	"github.com/auxoncorp/rtrace/internal/collector/dockersim"
	"github.com/auxoncorp/rtrace/internal/collector/file"
	"github.com/auxoncorp/rtrace/internal/collector/grpcproxy"
	"github.com/auxoncorp/rtrace/internal/config"
	"github.com/auxoncorp/rtrace/internal/contextmgr"
	"github.com/auxoncorp/rtrace/internal/ingest"
	"github.com/auxoncorp/rtrace/internal/ingest/grpcingest"
	"github.com/auxoncorp/rtrace/internal/ingest/jsonlsink"
	"github.com/auxoncorp/rtrace/internal/reader"
	"github.com/auxoncorp/rtrace/internal/wire"
)

func main() {
	tracePath := flag.String("trace-file", "", "path to a captured trace file")
	listenAddr := flag.String("listen", "", "listen address for the gRPC proxy collector (receives relayed trace bytes)")
	simImage := flag.String("sim-image", "", "Docker image of a trace simulator to launch and import from")
	simPort := flag.Int("sim-port", 8888, "TCP port inside the simulator container that streams the trace")

	ingestTransport := flag.String("ingest", "jsonl", "ingest transport: jsonl or grpc")
	ingestAddr := flag.String("ingest-addr", "", "ingest backend address (grpc transport only)")
	authToken := flag.String("auth-token", os.Getenv("RTRACE_AUTH_TOKEN"), "bearer token for the grpc ingest transport")

	interactionMode := flag.String("interaction-mode", "linearized", "interaction mode: linearized or ipc")
	singleTaskTimeline := flag.Bool("single-task-timeline", false, "collapse all tasks onto the startup timeline (linearized mode only)")
	flattenISR := flag.Bool("flatten-isr-timelines", false, "collapse ISRs onto their interrupted task (linearized mode only)")
	startupTaskName := flag.String("startup-task-name", "", "override the synthetic startup context's name")
	deviantBase := flag.Int("deviant-event-id-base", -1, "base event id for the deviant mutator/mutation decoder (-1 disables)")
	customPrintfID := flag.Int("custom-printf-event-id", -1, "override the wire parser's printf/user event id (-1 uses the default)")
	includeUnknown := flag.Bool("include-unknown-events", false, "emit events with unrecognised ids instead of dropping them")

	flag.Parse()

	sources := 0
	for _, set := range []bool{*tracePath != "", *listenAddr != "", *simImage != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		fmt.Fprintln(os.Stderr, "rtimport: exactly one of -trace-file, -listen, or -sim-image must be set")
		os.Exit(1)
	}

	cfg := config.Default()
	if *startupTaskName != "" {
		cfg.StartupTaskName = *startupTaskName
	}
	cfg.SingleTaskTimeline = *singleTaskTimeline
	cfg.FlattenISRTimelines = *flattenISR
	if *interactionMode == "ipc" {
		cfg.InteractionMode = config.IPC
	}
	cfg.IngestTransport = *ingestTransport
	cfg.IngestAddr = *ingestAddr
	cfg.AuthToken = *authToken
	if *deviantBase >= 0 {
		base := uint16(*deviantBase)
		cfg.DeviantEventIDBase = &base
	}
	if *customPrintfID >= 0 {
		id := uint16(*customPrintfID)
		cfg.CustomPrintfEventID = &id
	}
	cfg.IncludeUnknownEvents = *includeUnknown

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client, closeClient, err := buildIngestClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtimport: %v\n", err)
		os.Exit(1)
	}
	defer closeClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch {
	case *tracePath != "":
		runErr = runFile(ctx, *tracePath, cfg, client, logger)
	case *listenAddr != "":
		runErr = runListen(ctx, *listenAddr, cfg, client, logger)
	default:
		runErr = runSim(ctx, *simImage, *simPort, cfg, client, logger)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "rtimport: %v\n", runErr)
		os.Exit(1)
	}
}

func buildIngestClient(cfg config.Config) (ingest.Client, func(), error) {
	switch cfg.IngestTransport {
	case "", "jsonl":
		return jsonlsink.New(os.Stdout), func() {}, nil
	case "grpc":
		if cfg.IngestAddr == "" {
			return nil, nil, fmt.Errorf("ingest-addr is required for the grpc transport")
		}
		c, err := grpcingest.Dial(cfg.IngestAddr, cfg.AuthToken)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ingest transport %q", cfg.IngestTransport)
	}
}

// runFile runs the straight-line path: open a trace file, decode it, forward
// it. No collector/driver concurrency is needed since both sides are
// synchronous local I/O.
func runFile(ctx context.Context, path string, cfg config.Config, client ingest.Client, logger *slog.Logger) error {
	f, err := file.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	wr, err := wire.NewReader(f)
	if err != nil {
		return fmt.Errorf("rtimport: parsing trace header: %w", err)
	}
	if cfg.CustomPrintfEventID != nil {
		wr.SetCustomPrintfEventID(*cfg.CustomPrintfEventID)
	}

	mgr := contextmgr.New(cfg, wr.Header, logger)
	drv := reader.New(wr, mgr, client, logger)
	return drv.Run(ctx)
}

// runListen starts the gRPC proxy collector and the reader driver together
// in a run.Group: if either side fails, the other is cancelled.
func runListen(ctx context.Context, addr string, cfg config.Config, client ingest.Client, logger *slog.Logger) error {
	collector := grpcproxy.New(addr)

	// The header read blocks until a capture agent connects and relays the
	// stream preamble, so it has to happen inside the group, after the
	// collector's listener is up.
	group := run.Group{
		"collector": collector.Runner(),
		"driver": run.Func(func(ctx context.Context) error {
			wr, err := wire.NewReader(collector.Reader())
			if err != nil {
				return fmt.Errorf("rtimport: parsing trace header: %w", err)
			}
			if cfg.CustomPrintfEventID != nil {
				wr.SetCustomPrintfEventID(*cfg.CustomPrintfEventID)
			}

			mgr := contextmgr.New(cfg, wr.Header, logger)
			return reader.New(wr, mgr, client, logger).Run(ctx)
		}),
	}
	return group.Run(ctx)
}

// runSim launches a containerized trace simulator and imports the stream it
// serves, running the container lifecycle and the driver in a run.Group so a
// failure on either side tears down the other.
func runSim(ctx context.Context, image string, port int, cfg config.Config, client ingest.Client, logger *slog.Logger) error {
	collector := dockersim.New(dockersim.Config{Image: image, ContainerPort: port})

	group := run.Group{
		"simulator": collector.Runner(),
		"driver": run.Func(func(ctx context.Context) error {
			conn, err := collector.Conn(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			wr, err := wire.NewReader(conn)
			if err != nil {
				return fmt.Errorf("rtimport: parsing trace header: %w", err)
			}
			if cfg.CustomPrintfEventID != nil {
				wr.SetCustomPrintfEventID(*cfg.CustomPrintfEventID)
			}

			mgr := contextmgr.New(cfg, wr.Header, logger)
			return reader.New(wr, mgr, client, logger).Run(ctx)
		}),
	}
	return group.Run(ctx)
}
