// Package reader implements the driver loop that pulls wire events through
// the context manager and forwards them to an ingest client. It owns the
// one-element look-ahead buffer used to backfill a timeline's previous event
// with its publicly visible nonce once the following event has decided
// whether it interacted with it.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/matgreaves/run"

	"github.com/auxoncorp/rtrace/internal/contextmgr"
	"github.com/auxoncorp/rtrace/internal/ingest"
	"github.com/auxoncorp/rtrace/internal/wire"
)

// flushGrace bounds the best-effort final flush once the driver's context is
// cancelled, so teardown cannot hang indefinitely on a wedged ingest backend.
const flushGrace = 5 * time.Second

// Driver pulls (EventCode, Event) pairs from a wire.Reader, feeds them to a
// contextmgr.Manager, and forwards the resulting ContextEvents to an
// ingest.Client, one iteration behind, so that an event which references its
// predecessor as a causal edge can still promote that predecessor's nonce
// before it is sent.
type Driver struct {
	wr     *wire.Reader
	mgr    *contextmgr.Manager
	client ingest.Client
	logger *slog.Logger

	metadataSent map[string]bool // timeline ids whose TimelineMetadata has already been pushed
	lastOpened   string          // timeline id the backend's active timeline last pointed at

	warnedFmtLookup bool // format-string lookup failures warn once, not per event
}

// New builds a Driver over an already-initialized wire.Reader and
// contextmgr.Manager, delivering to client.
func New(wr *wire.Reader, mgr *contextmgr.Manager, client ingest.Client, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		wr:           wr,
		mgr:          mgr,
		client:       client,
		logger:       logger,
		metadataSent: make(map[string]bool),
	}
}

// Runner adapts Run to a github.com/matgreaves/run.Runner, so the driver
// composes into a run.Group alongside a collector's own receive loop.
func (d *Driver) Runner() run.Runner {
	return run.Func(d.Run)
}

// Run executes the driver loop until the wire stream is exhausted, ctx is
// cancelled, or a fatal error occurs. On any exit path it flushes the
// buffered event (if any) and calls client.Flush.
func (d *Driver) Run(ctx context.Context) error {
	var buffered *contextmgr.ContextEvent
	runErr := d.loop(ctx, &buffered)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushGrace)
	defer cancel()

	if buffered != nil {
		if err := d.push(flushCtx, buffered); err != nil {
			if runErr == nil {
				runErr = fmt.Errorf("reader: flushing buffered event: %w", err)
			}
		}
	}
	if err := d.client.Flush(flushCtx); err != nil {
		if runErr == nil {
			runErr = fmt.Errorf("reader: final flush: %w", err)
		}
	}
	return runErr
}

func (d *Driver) loop(ctx context.Context, buffered **contextmgr.ContextEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		code, ev, err := d.wr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			var restarted *wire.RestartedError
			if errors.As(err, &restarted) {
				if rerr := d.wr.Restart(); rerr != nil {
					return fmt.Errorf("reader: re-reading header after restart: %w", rerr)
				}
				d.mgr.UpdateHeader(d.wr.Header)
				d.mgr.ObserveTraceRestart()
				continue
			}

			var objLookup *wire.ObjectLookupError
			var invalidHandle *wire.InvalidObjectHandleError
			if errors.As(err, &objLookup) || errors.As(err, &invalidHandle) {
				d.mgr.SetDegraded(err.Error())
				continue
			}

			var fmtLookup *wire.UserEventFmtStringLookupError
			if errors.As(err, &fmtLookup) {
				if !d.warnedFmtLookup {
					d.warnedFmtLookup = true
					d.logger.Warn("skipping user events with unresolvable format strings", "handle", uint32(fmtLookup.Handle))
				}
				continue
			}

			return fmt.Errorf("reader: parsing event: %w", err)
		}

		produced, err := d.mgr.Process(code, ev)
		if err != nil {
			return fmt.Errorf("reader: processing event: %w", err)
		}
		if produced == nil {
			continue
		}

		if *buffered != nil {
			prev := *buffered
			if produced.PromotePrevious {
				prev.PromoteNonce()
			}
			if err := d.push(ctx, prev); err != nil {
				return fmt.Errorf("reader: pushing event to ingest client: %w", err)
			}
		}
		*buffered = produced
	}
}

// push delivers one ContextEvent to the ingest client: opening its timeline
// (and sending metadata, the first time) before appending the event itself.
func (d *Driver) push(ctx context.Context, ev *contextmgr.ContextEvent) error {
	id := ev.TimelineID.String()
	if id != d.lastOpened {
		if err := d.client.OpenTimeline(ctx, id); err != nil {
			return fmt.Errorf("open timeline %s: %w", id, err)
		}
		d.lastOpened = id
	}
	if ev.NewTimeline && !d.metadataSent[id] {
		d.metadataSent[id] = true
		if err := d.client.TimelineMetadata(ctx, id, ev.TimelineAttrs); err != nil {
			return fmt.Errorf("timeline metadata %s: %w", id, err)
		}
	}
	if err := d.client.Event(ctx, ev.GlobalOrdering, ev.Attrs); err != nil {
		return fmt.Errorf("event %d: %w", ev.GlobalOrdering, err)
	}
	return nil
}
