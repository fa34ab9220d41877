// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	crand "crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultMaxMessageSize is the largest message this engine will claim it can
// receive, RFC 3412 §6 msgMaxSize - the traditional SNMP-over-UDP ceiling.
const defaultMaxMessageSize = 65507

// EngineObserver is notified of engine lifecycle events a host application
// may want to react to (metrics, audit logging) without reaching into the
// dispatcher's internals.
type EngineObserver interface {
	OnEngineDiscovered(engineID string)
	OnAuthenticationFailure(engineID, userName string)
}

type nopObserver struct{}

func (nopObserver) OnEngineDiscovered(string)              {}
func (nopObserver) OnAuthenticationFailure(string, string)  {}

// NopObserver is the default EngineObserver: it does nothing.
var NopObserver EngineObserver = nopObserver{}

// SnmpEngine is the stateful root object of the manager: RFC 3411 §3.1's
// "SNMP engine", identified by a unique engineID and owning the registered
// Message Processing Models, Security Models, and the transport binding
// used to send and receive messages.
type SnmpEngine struct {
	ID string

	boots     uint32
	bootsPath string
	startTime time.Time

	MaxMessageSize uint32

	requestID uint32
	msgID     uint32

	securityV1 *communitySecurityModel
	usm        *usmSecurityModel

	userCtxMu sync.Mutex
	userCtx   map[string]interface{}

	transportMu sync.Mutex
	transport   TransportDispatcher

	Observer EngineObserver
	Log      Logger
}

// EngineOption configures a SnmpEngine at construction time, following the
// teacher's functional-option convention for GoSNMP.
type EngineOption func(*SnmpEngine)

// WithEngineID pins the engine's own engineID instead of synthesising one.
// A manager only needs a stable identity of its own when it will also be
// discovered as an authoritative engine by another party (e.g. receiving
// informs); most command-generator-only managers can leave this unset.
func WithEngineID(id string) EngineOption {
	return func(e *SnmpEngine) { e.ID = id }
}

// WithBootCounterFile points boot-counter persistence at a specific path
// instead of the default under os.TempDir.
func WithBootCounterFile(path string) EngineOption {
	return func(e *SnmpEngine) { e.bootsPath = path }
}

// WithMaxMessageSize overrides defaultMaxMessageSize.
func WithMaxMessageSize(n uint32) EngineOption {
	return func(e *SnmpEngine) { e.MaxMessageSize = n }
}

// WithObserver attaches an EngineObserver.
func WithObserver(o EngineObserver) EngineOption {
	return func(e *SnmpEngine) { e.Observer = o }
}

// WithLogger attaches a debug Logger, in the shape of GoSNMP's own Logger
// field.
func WithLogger(l Logger) EngineOption {
	return func(e *SnmpEngine) { e.Log = l }
}

// NewSnmpEngine constructs a manager engine: synthesises an engineID if
// none was supplied, loads (or starts) the persisted boot counter, and
// registers the USM and community Security Models.
func NewSnmpEngine(opts ...EngineOption) (*SnmpEngine, error) {
	e := &SnmpEngine{
		MaxMessageSize: defaultMaxMessageSize,
		securityV1:     newCommunitySecurityModel(),
		usm:            newUSMSecurityModel(),
		userCtx:        make(map[string]interface{}),
		Observer:       NopObserver,
		Log:            NopLogger,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.ID == "" {
		id, err := synthesizeEngineID()
		if err != nil {
			return nil, fmt.Errorf("snmpengine: synthesising engineID: %w", err)
		}
		e.ID = id
	}

	if e.bootsPath == "" {
		e.bootsPath = defaultBootCounterPath(e.ID)
	}
	boots, err := loadAndIncrementBootCounter(e.bootsPath)
	if err != nil {
		// Persistence failures are logged, not fatal - an engine that can't
		// persist its boot counter still starts, just without RFC 3414
		// §2.4's anti-replay guarantee across restarts.
		e.Log.Printf("snmpengine: boot counter persistence unavailable, starting at 0: %v", err)
		boots = 0
	}
	e.boots = boots

	return e, nil
}

// synthesizeEngineID builds an RFC 3411 §5 compliant engineID using format
// 5 (text/octets, administratively assigned): a reserved-for-private-use
// enterprise number with the format byte followed by random octets. A real
// deployment would register its own enterprise number; this engine has
// none, so it uses IANA's "reserved" value 0 the same way net-snmp's
// "--default" build does when no enterprise number is configured.
func synthesizeEngineID() (string, error) {
	suffix := make([]byte, 12)
	if _, err := crand.Read(suffix); err != nil {
		return "", err
	}
	header := []byte{0x80, 0x00, 0x00, 0x00, 0x05}
	return string(append(header, suffix...)), nil
}

// nextRequestID hands out the msgRequestID/request-id used to correlate a
// v1/v2c GetResponse, or the requestID embedded in a v3 PDU, RFC 3416 §3.
func (e *SnmpEngine) nextRequestID() uint32 {
	return atomic.AddUint32(&e.requestID, 1)
}

// nextMsgID hands out msgID values for v3 messages, RFC 3412 §6, from a
// counter independent of nextRequestID's: dispatcher correlation keys on
// (msgID, version) for v3, not requestID, so the two spaces never need to
// be disjoint in value, only independently monotonic.
func (e *SnmpEngine) nextMsgID() uint32 {
	return atomic.AddUint32(&e.msgID, 1)
}

// EngineBoots returns this engine's own boot counter, persisted across
// restarts via the file at e.bootsPath.
func (e *SnmpEngine) EngineBoots() uint32 { return e.boots }

// EngineTime returns this engine's own snmpEngineTime: seconds since this
// process's SnmpEngine was constructed, RFC 3414 §2.2.3.
func (e *SnmpEngine) EngineTime() uint32 {
	return uint32(time.Since(e.startTime).Seconds())
}

// registerTransportDispatcher binds the engine to a single Transport
// Dispatcher: a second call without an intervening unregister is an error,
// matching RFC 3411 §4.1.1's "an SNMP engine may contain ... one transport
// mapping instance" simplification this manager makes.
func (e *SnmpEngine) registerTransportDispatcher(t TransportDispatcher) error {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.transport != nil {
		return fmt.Errorf("snmpengine: a transport dispatcher is already registered")
	}
	e.transport = t
	return nil
}

func (e *SnmpEngine) unregisterTransportDispatcher() {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	e.transport = nil
}

func (e *SnmpEngine) boundTransport() (TransportDispatcher, error) {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.transport == nil {
		return nil, fmt.Errorf("snmpengine: no transport dispatcher registered")
	}
	return e.transport, nil
}

// setUserContext/getUserContext/delUserContext let a host application stash
// opaque per-engine state (e.g. a MIB resolver cache) without subclassing
// SnmpEngine, mirroring pysnmp's SnmpEngine.observer/cache context bags.
func (e *SnmpEngine) setUserContext(key string, value interface{}) {
	e.userCtxMu.Lock()
	defer e.userCtxMu.Unlock()
	e.userCtx[key] = value
}

func (e *SnmpEngine) getUserContext(key string) (interface{}, bool) {
	e.userCtxMu.Lock()
	defer e.userCtxMu.Unlock()
	v, ok := e.userCtx[key]
	return v, ok
}

func (e *SnmpEngine) delUserContext(key string) {
	e.userCtxMu.Lock()
	defer e.userCtxMu.Unlock()
	delete(e.userCtx, key)
}
