// Package collector implements the collector's main event loop (C5) and
// rotation/retention policy (C6): it owns the index table, the current
// audit file, and the per-producer reassembly state, and is the only
// writer of the archive.
package collector

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbaudit/collector/internal/auditfile"
	"github.com/dbaudit/collector/internal/clock"
	"github.com/dbaudit/collector/internal/indexfile"
	"github.com/dbaudit/collector/internal/logging"
	"github.com/dbaudit/collector/internal/metrics"
	"github.com/dbaudit/collector/internal/wire"
)

// Collector owns the in-memory index and the open append handle; per
// spec.md §3 ("Ownership and lifecycle"), producers never touch either —
// all access to the archive other than query/delete scans goes through
// this type.
type Collector struct {
	dir    string
	policy Policy
	clock  clock.Clock
	log    *logging.Logger
	reg    *metrics.Registry

	table *indexfile.Table
	files *auditfile.Manager
	reasm *wire.Reassembler

	nextRotation     time.Time
	rotationDisabled bool
	spaceBeyondSize  uint64
}

// Option configures a Collector at construction time.
type Option func(*Collector)

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collector) { c.log = l }
}

// WithClock overrides the default (real) clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Collector) { c.clock = clk }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Collector) { c.reg = reg }
}

// Open loads (or allocates) the index table under dir and opens the
// current audit file. A load failure with an existing-but-corrupt index is
// returned wrapped in *FatalError, matching spec.md §7's "fatal: cannot
// read a malformed existing index at startup" rule.
func Open(dir string, policy Policy, opts ...Option) (*Collector, error) {
	c := &Collector{
		dir:    dir,
		policy: policy,
		clock:  &clock.RealClock{},
		log:    logging.Default().WithComponent("collector"),
		reg:    metrics.Get(),
		reasm:  wire.NewReassembler(),
	}
	for _, opt := range opts {
		opt(c)
	}

	table, err := indexfile.Load(dir)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("%w: %v", ErrIndexCorrupt, err)}
	}
	if table == nil {
		table = indexfile.New(policy.FileRemainThreshold + 1)
	}
	c.table = table
	c.files = auditfile.New(dir, table)

	now := c.clock.Now()
	if err := c.files.OpenCurrent(now.Unix()); err != nil {
		return nil, &FatalError{Err: err}
	}
	if c.files.CurrentSize() == 0 {
		c.log.Internal("file", "create", map[string]any{"filenum": c.files.CurrentFileNum()})
	}

	c.nextRotation = NextRotationTime(now, policy.RotationAge)
	return c, nil
}

// HandleChunk decodes one frame out of buf and, if it completes a record,
// appends it. It returns the number of bytes consumed from buf and
// whether the bytes were stray (non-protocol) data, mirroring
// process_pipe_input's per-read behavior (spec.md §4.1, §4.5 step 7).
func (c *Collector) HandleChunk(buf []byte, maxPayload int) (consumed int, stray bool, err error) {
	f, n, ok := wire.TryDecodeFrame(buf, maxPayload)
	if n == 0 {
		return 0, false, nil // need more bytes
	}
	if !ok {
		c.reg.StrayBytesEmitted.Add(float64(n))
		// Stray bytes go to the current file verbatim, without a stamp.
		if err := c.appendWithRetry(buf[:n]); err != nil {
			return n, true, err
		}
		return n, true, nil
	}

	c.reg.ChunksDecoded.Inc()
	if record, done := c.reasm.Accept(f); done {
		if err := c.AppendRecord(record); err != nil {
			return n, false, err
		}
	}
	return n, false, nil
}

// FlushResidue writes out every outstanding partial per-producer buffer as
// a record prefix, never dropping a dying producer's last bytes (spec.md
// §4.5 "On EOF").
func (c *Collector) FlushResidue() error {
	for _, partial := range c.reasm.Flush() {
		if len(partial) == 0 {
			continue
		}
		if err := c.AppendRecord(partial); err != nil {
			return err
		}
	}
	return nil
}

// AppendRecord stamps time/size on buf in place and writes it to the
// current file, handling the backwards-clock marker (spec.md §4.6).
// buf must be at least wire.HeaderSize bytes; shorter residue from a
// never-completed record is still written verbatim, matching the original
// collector's flush_pipe_input.
func (c *Collector) AppendRecord(buf []byte) error {
	now := c.clock.Now().Unix()
	if len(buf) >= wire.HeaderSize {
		wire.Stamp(buf, now)
	}

	if !clock.IsReasonableTime(time.Unix(now, 0)) {
		c.log.Warn("system clock reads an unreasonable time, skipping backwards-clock check", "unix_time", now)
	} else if c.table.LastAuditTime > now {
		c.table.MarkBackwardsClock()
		c.table.LastAuditTime = now
		if err := c.table.Save(c.dir); err != nil {
			c.log.Error("failed to persist index after backwards-clock mark", "error", err)
		}
		c.writeInternalEventLocked("time", "system time changed.", now)
	}
	c.table.LastAuditTime = now

	category := "unknown"
	if len(buf) >= wire.HeaderSize+2 {
		typ := wire.Type(uint16(buf[wire.HeaderSize]) | uint16(buf[wire.HeaderSize+1])<<8)
		category = typ.Label()
	}

	if err := c.appendWithRetry(buf); err != nil {
		return err
	}
	c.reg.RecordsAppended.WithLabelValues(category).Inc()
	return nil
}

// appendWithRetry writes buf to the current file, retrying indefinitely on
// ENOSPC (spec.md §5, §7 "Transient-retry") — the operator is expected to
// intervene; every other error is fatal for this one write.
func (c *Collector) appendWithRetry(buf []byte) error {
	for {
		_, err := c.files.Append(buf)
		if err == nil {
			return nil
		}
		if isNoSpace(err) {
			c.reg.AppendRetries.Inc()
			c.log.Warn("no space left for audit file, retrying", "dir", c.dir)
			time.Sleep(time.Second)
			continue
		}
		return fmt.Errorf("collector: append: %w", err)
	}
}

// writeInternalEventLocked synthesizes an internal_event record and writes
// it directly to the current file, bypassing AppendRecord's backwards-clock
// check (the caller already holds the relevant state) to avoid recursion.
func (c *Collector) writeInternalEventLocked(object, detail string, now int64) {
	rec := &wire.Record{Type: wire.TypeInternalEvent, Result: wire.ResultOK}
	rec.Fields[wire.FieldObjectName] = []byte(object)
	rec.Fields[wire.FieldDetailInfo] = []byte(detail)
	buf := wire.Encode(rec)
	wire.Stamp(buf, now)
	if err := c.appendWithRetry(buf); err != nil {
		c.log.Error("failed to write internal_event record", "error", err)
	}
	c.log.Internal(object, detail, nil)
}

// WriteInternalEvent is the exported form used by the retention pass.
func (c *Collector) WriteInternalEvent(object, detail string) {
	c.writeInternalEventLocked(object, detail, c.clock.Now().Unix())
}

// Tick runs one iteration of the main loop's rotation + retention logic
// (spec.md §4.5 steps 3-5): it checks whether rotation should fire, rotates
// if so, then runs the retention pass. forced should be true when called in
// response to SIGUSR1.
func (c *Collector) Tick(forced bool) error {
	now := c.clock.Now()

	if !c.policy.Enabled {
		return nil
	}

	if !c.rotationDisabled {
		d := decideRotation(now, c.nextRotation, c.policy, c.files.CurrentSize(), forced)
		if d.requested {
			rotationTime := now
			if d.timeBased {
				rotationTime = c.nextRotation
			}
			if err := c.rotate(rotationTime); err != nil {
				return err
			}
		}
	}
	if c.policy.RotationAge > 0 {
		c.nextRotation = NextRotationTime(now, c.policy.RotationAge)
	}

	c.RunRetention(now)
	return nil
}

func (c *Collector) rotate(at time.Time) error {
	// Evict the oldest file first if the ring has no free slot, per
	// spec.md §3: "the oldest must be evicted before the ring wraps."
	if c.table.Count == c.table.MaxNum {
		c.evictOldest(c.clock.Now())
	}

	err := c.files.Rotate(at.Unix())
	if err == nil {
		if saveErr := c.table.Save(c.dir); saveErr != nil {
			c.log.Error("failed to persist index after rotation", "error", saveErr)
		}
		c.reg.RotationsTotal.WithLabelValues("rotation").Inc()
		c.log.Internal("file", "create a new audit file", map[string]any{"filenum": c.files.CurrentFileNum()})
		return nil
	}

	var openErr *auditfile.OpenError
	if errors.As(err, &openErr) && openErr.Transient {
		// ENFILE/EMFILE: keep using the old file (which rotate already
		// closed — reopen it so the collector keeps working). Rotate has
		// already advanced the ring, so step it back to the old slot first.
		c.log.Warn("transient rotation failure, retrying old file", "error", err)
		t := c.table
		t.Slots[t.CurIdx] = indexfile.Slot{}
		t.CurIdx = (t.CurIdx + t.MaxNum - 1) % t.MaxNum
		t.Count--
		return c.files.OpenCurrent(at.Unix())
	}

	c.rotationDisabled = true
	c.reg.RotationFailure.Inc()
	c.log.Warn("disabling automatic rotation (use SIGHUP to re-enable)", "error", err)
	return nil
}

// ReloadConfig applies a new Policy (a SIGHUP-triggered reload per
// spec.md §4.5 step 2): it resets the rotation schedule if the rotation
// age changed, rebuilds the index if the retention count changed, and
// re-arms rotation if a prior open failure had disabled it.
func (c *Collector) ReloadConfig(newPolicy Policy) error {
	now := c.clock.Now()
	ageChanged := newPolicy.RotationAge != c.policy.RotationAge
	thresholdChanged := newPolicy.FileRemainThreshold != c.policy.FileRemainThreshold

	c.policy = newPolicy

	if ageChanged {
		c.nextRotation = NextRotationTime(now, newPolicy.RotationAge)
	}

	if thresholdChanged {
		if err := c.table.Save(c.dir); err != nil {
			c.log.Error("failed to persist index before resize", "error", err)
		}
		newCapacity := newPolicy.FileRemainThreshold + 1
		if newCapacity < c.table.MaxNum && c.table.Count > newCapacity {
			for c.table.Count > newCapacity {
				if !c.evictOldest(now) {
					break
				}
			}
		}
		if err := c.files.CloseCurrent(); err != nil {
			c.log.Error("failed to close current file before resize", "error", err)
		}
		c.table = c.table.Compact(newCapacity)
		c.files = auditfile.New(c.dir, c.table)
		if err := c.files.OpenCurrent(now.Unix()); err != nil {
			return err
		}
		if err := c.table.Save(c.dir); err != nil {
			c.log.Error("failed to persist resized index", "error", err)
		}
	}

	if c.rotationDisabled {
		c.rotationDisabled = false
		return c.rotate(now)
	}
	return nil
}

// Shutdown performs graceful shutdown (SIGQUIT, or pipe EOF): flush
// residual per-producer buffers, run a final retention pass, persist the
// index, and close the current file.
func (c *Collector) Shutdown() error {
	if err := c.FlushResidue(); err != nil {
		c.log.Error("failed to flush residue on shutdown", "error", err)
	}
	c.RunRetention(c.clock.Now())
	if err := c.table.Save(c.dir); err != nil {
		c.log.Error("failed to persist index on shutdown", "error", err)
	}
	return c.files.CloseCurrent()
}

// Table exposes the index table for read-only inspection (tests, metrics).
func (c *Collector) Table() *indexfile.Table { return c.table }

// Files exposes the file manager for read-only inspection (tests, metrics).
func (c *Collector) Files() *auditfile.Manager { return c.files }
