// Package producer implements the producer-side emitter (C7): category
// filtering, record construction, and handoff to the collector either
// through the shared pipe or, for the collector's own process, directly.
package producer

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/dbaudit/collector/internal/logging"
	"github.com/dbaudit/collector/internal/metrics"
	"github.com/dbaudit/collector/internal/wire"
)

// Mode mirrors the server's replication role; only Primary may emit.
type Mode int32

const (
	ModePrimary Mode = iota
	ModeStandby
	ModePending
)

// SelfWriter is satisfied by *collector.Collector: when a producer is
// constructed with one, Emit bypasses the pipe entirely, since the pipe's
// read end is never writable by the collector that owns it.
type SelfWriter interface {
	AppendRecord(buf []byte) error
}

// Fields carries the session/connection metadata that accompanies every
// record beyond the four primary emit() arguments (spec.md §6). NodeName
// identifies the cluster node the record was generated on; callers that
// don't set it get the producer's own default (see WithNodeName).
type Fields struct {
	UserID         string
	UserName       string
	DatabaseName   string
	ClientConnInfo string
	LocalPort      string
	RemotePort     string
	NodeName       string
}

// Producer is one backend's audit emitter.
type Producer struct {
	id  uint64
	pid int

	pipe       io.Writer
	maxPayload int
	self       SelfWriter

	policy Policy
	mode   atomic.Int32

	nodeName  string
	loginTime time.Time

	log *logging.Logger
	reg *metrics.Registry
}

// Option configures a Producer at construction time.
type Option func(*Producer)

// WithPipe wires the shared pipe write end and the negotiated chunk size.
func WithPipe(w io.Writer, maxPayload int) Option {
	return func(p *Producer) { p.pipe = w; p.maxPayload = maxPayload }
}

// WithSelfWriter wires the collector's own append path, used only by the
// collector process's own internal producer (e.g. for startup/shutdown
// internal_event records written outside the normal append flow).
func WithSelfWriter(sw SelfWriter) Option {
	return func(p *Producer) { p.self = sw }
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Producer) { p.log = l }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Producer) { p.reg = reg }
}

// WithNodeName sets the node name stamped onto every record whose Fields
// don't supply their own (spec.md §6's node_name field; the original
// always stamps this from g_instance.attr.attr_common.PGXCNodeName —
// there is no such cluster-global instance struct in this module, so the
// value is threaded in explicitly at construction instead).
func WithNodeName(name string) Option {
	return func(p *Producer) { p.nodeName = name }
}

// New creates a producer identified by producerID (the pipe framing id)
// and pid (used for thread-id composition). policy is the decoded
// category-enable set from configuration. The node name defaults to the
// host's own hostname until overridden with WithNodeName.
func New(producerID uint64, pid int, policy Policy, opts ...Option) *Producer {
	hostname, _ := os.Hostname()
	p := &Producer{
		id:       producerID,
		pid:      pid,
		policy:   policy,
		nodeName: hostname,
		log:      logging.Default().WithComponent("producer"),
		reg:      metrics.Get(),
	}
	p.mode.Store(int32(ModePrimary))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetMode updates the server mode a subsequent Emit observes; call this
// whenever the server's replication role changes.
func (p *Producer) SetMode(m Mode) { p.mode.Store(int32(m)) }

// Mode returns the producer's current observed server mode.
func (p *Producer) Mode() Mode { return Mode(p.mode.Load()) }

// SetLoginTime records the timestamp used to compose this session's
// thread-id ("<pid>@<login-ts>"); call it once, at login.
func (p *Producer) SetLoginTime(t time.Time) { p.loginTime = t }

// Emit builds and dispatches one audit record, applying the category gate
// and server-mode suppression before encoding (spec.md §4.7).
func (p *Producer) Emit(typ wire.Type, result wire.Result, objectName, detailInfo string, f Fields) error {
	if p.Mode() != ModePrimary {
		p.reg.RecordsDropped.WithLabelValues("mode").Inc()
		return nil
	}

	if typ != wire.TypeInternalEvent {
		cat, known := categoryFor(typ)
		if !known {
			p.log.Warn("unknown audit type, discarding", "type", uint16(typ))
			p.reg.RecordsDropped.WithLabelValues("policy").Inc()
			return nil
		}
		if !p.policy.allows(cat) {
			p.reg.RecordsDropped.WithLabelValues("policy").Inc()
			return nil
		}
	}

	rec := &wire.Record{Type: typ, Result: result}
	rec.Fields[wire.FieldUserID] = nonEmpty(f.UserID)
	rec.Fields[wire.FieldUserName] = nonEmpty(f.UserName)
	rec.Fields[wire.FieldDatabaseName] = nonEmpty(f.DatabaseName)
	rec.Fields[wire.FieldClientConnInfo] = nonEmpty(f.ClientConnInfo)
	rec.Fields[wire.FieldObjectName] = nonEmpty(objectName)
	rec.Fields[wire.FieldDetailInfo] = nonEmpty(detailInfo)
	rec.Fields[wire.FieldThreadID] = []byte(p.threadID())
	rec.Fields[wire.FieldLocalPort] = nonEmpty(f.LocalPort)
	rec.Fields[wire.FieldRemotePort] = nonEmpty(f.RemotePort)
	rec.Fields[wire.FieldNodeName] = nonEmpty(p.nodeNameFor(f))

	buf := wire.Encode(rec)
	return p.dispatch(buf)
}

func (p *Producer) threadID() string {
	return fmt.Sprintf("%d@%d", p.pid, p.loginTime.Unix())
}

// nodeNameFor prefers the per-call value over the producer's own default,
// so a caller that already knows a more specific node identity isn't
// forced through WithNodeName at construction time.
func (p *Producer) nodeNameFor(f Fields) string {
	if f.NodeName != "" {
		return f.NodeName
	}
	return p.nodeName
}

func nonEmpty(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

// dispatch hands an encoded record to the collector: directly if this
// producer is the collector's own, through the pipe if one is wired, or
// (dropped-on-state) to the host log if neither is available yet.
func (p *Producer) dispatch(buf []byte) error {
	if p.self != nil {
		return p.self.AppendRecord(buf)
	}
	if p.pipe != nil {
		chunks, err := wire.EncodeChunks(p.id, buf, p.maxPayload)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			// A failed write is not retried: the producer cannot
			// meaningfully recover, and retrying against a dead
			// collector risks an infinite loop (spec.md §4.1).
			_, _ = p.pipe.Write(chunk)
		}
		return nil
	}

	p.reg.RecordsDropped.WithLabelValues("state").Inc()
	p.log.Warn("audit pipe not wired, routing record to host log", "producer_id", p.id)
	return nil
}
