// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"sync"
	"time"
)

// sendPduHandle identifies one outstanding request, returned by sendPdu and
// passed back to its ResponseCallback.
type sendPduHandle uint64

// ResponseCallback is invoked exactly once per sendPdu call: either with a
// decoded response PDU and errInd == ErrNone, or with a non-empty errInd
// and a nil PDU.
type ResponseCallback func(handle sendPduHandle, errInd ErrorIndication, pdu *PDU, contextEngineID, contextName string)

// pendingRequest is the dispatcher's bookkeeping for one in-flight sendPdu
// call: enough to retransmit, to correlate an inbound response, and to
// fire the caller's callback exactly once.
type pendingRequest struct {
	handle           sendPduHandle
	version          SnmpVersion
	requestID        uint32
	msgID            uint32
	transportDomain  string
	transportAddress string

	mp  messageProcessingModel
	req *outboundRequest

	wire []byte

	cb ResponseCallback

	retriesLeft int
	timeout     time.Duration
	deadline    time.Time

	// discoveryPending is set while this request is waiting on an engine
	// discovery round-trip before its real message has even been put on
	// the wire.
	discoveryPending bool
}

// Dispatcher is the Message & PDU Dispatcher: sendPdu, receiveMessage and
// receiveTimerTick, plus the pending-request table that ties them together.
type Dispatcher struct {
	engine *SnmpEngine

	mu           sync.Mutex
	pending      map[sendPduHandle]*pendingRequest
	nextHandle   uint64
	shuttingDown bool
}

// NewDispatcher wires itself to engine's registered transport, registering
// itself as the transport's recv and timer callbacks.
func NewDispatcher(engine *SnmpEngine) (*Dispatcher, error) {
	transport, err := engine.boundTransport()
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		engine:  engine,
		pending: make(map[sendPduHandle]*pendingRequest),
	}
	transport.RegisterRecvCallback(d.receiveMessage)
	transport.RegisterTimerCallback(100*time.Millisecond, d.receiveTimerTick)
	return d, nil
}

// sendPdu builds the outgoing message via the version's Message Processing
// Model, hands it to the transport, and registers a pending entry for
// correlation/retransmission. For v3 requests whose authoritative engineID
// is not yet known, it queues an engine discovery round-trip first and
// defers the real send until that completes.
func (d *Dispatcher) sendPdu(version SnmpVersion, req *outboundRequest, transportDomain, transportAddress string, timeout time.Duration, retries int, cb ResponseCallback) (sendPduHandle, error) {
	d.mu.Lock()
	if d.shuttingDown {
		d.mu.Unlock()
		return 0, fmt.Errorf("snmpengine: dispatcher is shutting down")
	}
	d.mu.Unlock()

	mp, err := newMessageProcessingModel(version, d.engine)
	if err != nil {
		return 0, err
	}

	handle := sendPduHandle(d.allocHandle())

	if version == Version3 && req.usm != nil && req.usm.AuthoritativeEngineID == "" {
		return d.sendWithDiscovery(handle, mp, req, transportDomain, transportAddress, timeout, retries, cb)
	}

	return d.sendNow(handle, mp, req, transportDomain, transportAddress, timeout, retries, cb)
}

func (d *Dispatcher) allocHandle() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandle++
	return d.nextHandle
}

func (d *Dispatcher) sendNow(handle sendPduHandle, mp messageProcessingModel, req *outboundRequest, transportDomain, transportAddress string, timeout time.Duration, retries int, cb ResponseCallback) (sendPduHandle, error) {
	out, err := mp.PrepareOutgoingMessage(req)
	if err != nil {
		return 0, err
	}

	transport, err := d.engine.boundTransport()
	if err != nil {
		return 0, err
	}
	if err := transport.SendMessage(out.wire, transportDomain, transportAddress); err != nil {
		return 0, err
	}

	pr := &pendingRequest{
		handle:           handle,
		version:          mp.Version(),
		requestID:        out.requestID,
		msgID:            out.msgID,
		transportDomain:  transportDomain,
		transportAddress: transportAddress,
		mp:               mp,
		req:              req,
		wire:             out.wire,
		cb:               cb,
		retriesLeft:      retries,
		timeout:          timeout,
		deadline:         time.Now().Add(timeout),
	}

	d.mu.Lock()
	d.pending[handle] = pr
	d.mu.Unlock()

	return handle, nil
}

// sendWithDiscovery sends an unauthenticated, reportable, empty GetRequest
// to learn the target's authoritative engineID (and, opportunistically, its
// current boots/time), queuing the caller's real request to follow once the
// Report arrives.
func (d *Dispatcher) sendWithDiscovery(handle sendPduHandle, mp messageProcessingModel, req *outboundRequest, transportDomain, transportAddress string, timeout time.Duration, retries int, cb ResponseCallback) (sendPduHandle, error) {
	discoverySP := req.usm.Copy()
	discoverySP.AuthenticationProtocol = NoAuth
	discoverySP.PrivacyProtocol = NoPriv

	discoveryReq := &outboundRequest{
		pdu:            &PDU{Type: GetRequest},
		contextEngineID: req.contextEngineID,
		contextName:    req.contextName,
		securityName:   req.securityName,
		securityLevel:  NoAuthNoPriv,
		usm:            discoverySP,
		maxMessageSize: req.maxMessageSize,
		reportable:     true,
	}

	out, err := mp.PrepareOutgoingMessage(discoveryReq)
	if err != nil {
		return 0, err
	}
	transport, err := d.engine.boundTransport()
	if err != nil {
		return 0, err
	}
	if err := transport.SendMessage(out.wire, transportDomain, transportAddress); err != nil {
		return 0, err
	}

	pr := &pendingRequest{
		handle:           handle,
		version:          Version3,
		msgID:            out.msgID,
		transportDomain:  transportDomain,
		transportAddress: transportAddress,
		mp:               mp,
		req:              req,
		cb:               cb,
		retriesLeft:      retries,
		timeout:          timeout,
		deadline:         time.Now().Add(timeout),
		discoveryPending: true,
	}

	d.mu.Lock()
	d.pending[handle] = pr
	d.mu.Unlock()

	return handle, nil
}

// receiveMessage decodes just enough to route by version, hands the rest
// to that version's Message Processing Model, then correlates against the
// pending-request table.
func (d *Dispatcher) receiveMessage(transportDomain, transportAddress string, wholeMsg []byte) {
	version, err := peekVersion(wholeMsg)
	if err != nil {
		d.engine.Log.Printf("snmpengine: dropping unparseable datagram from %s: %v", transportAddress, err)
		return
	}

	mp, err := newMessageProcessingModel(version, d.engine)
	if err != nil {
		d.engine.Log.Printf("snmpengine: %v", err)
		return
	}

	in, err := mp.PrepareDataElements(wholeMsg)
	if err != nil {
		d.engine.Log.Printf("snmpengine: discarding message from %s: %v", transportAddress, err)
		return
	}

	pr := d.takeMatching(in)
	if pr == nil {
		return // no matching outstanding request; silently discard
	}

	// A security-model failure (bad digest, stale time window, unknown
	// user, unsupported security level, unknown security model, ...) still
	// correlates to a pendingRequest; fail that request with the specific
	// errInd instead of dropping the datagram and leaving the caller to
	// learn about it only via requestTimedOut once retries run out.
	if in.errInd != ErrNone {
		pr.cb(pr.handle, in.errInd, nil, "", "")
		return
	}

	if pr.discoveryPending {
		d.completeDiscovery(pr, in)
		return
	}

	pr.cb(pr.handle, errorIndicationFor(in.pdu), in.pdu, in.contextEngineID, in.contextName)
}

// errorIndicationFor returns ErrNone for any decoded response PDU, whatever
// its errorStatus (including v1 noSuchName): command generator applications
// (cmdgen.go) interpret errorStatus themselves. A nil PDU yields
// ErrRequestTimedOut.
func errorIndicationFor(pdu *PDU) ErrorIndication {
	if pdu == nil {
		return ErrRequestTimedOut
	}
	return ErrNone
}

// takeMatching finds and removes the pending request a decoded incoming
// message correlates to: v3 by msgID, v1/v2c by requestID.
func (d *Dispatcher) takeMatching(in *incomingMessage) *pendingRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	for handle, pr := range d.pending {
		if pr.version != in.version {
			continue
		}
		matched := false
		switch in.version {
		case Version3:
			matched = pr.msgID == in.msgID
		default:
			matched = pr.requestID == in.requestID
		}
		if !matched {
			continue
		}
		if pr.discoveryPending && in.errInd == ErrNone && in.isReport {
			return pr // leave it pending; completeDiscovery removes it
		}
		delete(d.pending, handle)
		return pr
	}
	return nil
}

// completeDiscovery learns the target's engineID/boots/time from the
// Report, updates the queued real request's security parameters, and sends
// it for real.
func (d *Dispatcher) completeDiscovery(pr *pendingRequest, in *incomingMessage) {
	if in.learnedEngineID == "" {
		d.failPending(pr, ErrUnknownEngineID)
		return
	}

	pr.req.usm.AuthoritativeEngineID = in.learnedEngineID
	pr.req.usm.AuthoritativeEngineBoots = in.learnedBoots
	pr.req.usm.AuthoritativeEngineTime = in.learnedTime
	d.engine.Observer.OnEngineDiscovered(in.learnedEngineID)

	out, err := pr.mp.PrepareOutgoingMessage(pr.req)
	if err != nil {
		d.finishPending(pr, ErrUnknownEngineID, nil, "", "")
		return
	}
	transport, err := d.engine.boundTransport()
	if err != nil {
		d.finishPending(pr, ErrEngineShuttingDown, nil, "", "")
		return
	}
	if err := transport.SendMessage(out.wire, pr.transportDomain, pr.transportAddress); err != nil {
		d.finishPending(pr, ErrRequestTimedOut, nil, "", "")
		return
	}

	d.mu.Lock()
	pr.discoveryPending = false
	pr.msgID = out.msgID
	pr.wire = out.wire
	pr.deadline = time.Now().Add(pr.timeout)
	d.pending[pr.handle] = pr
	d.mu.Unlock()
}

// receiveTimerTick retransmits or times out every pending request whose
// deadline has passed.
func (d *Dispatcher) receiveTimerTick() {
	now := time.Now()

	var expired []*pendingRequest
	var retry []*pendingRequest

	d.mu.Lock()
	for _, pr := range d.pending {
		if now.Before(pr.deadline) {
			continue
		}
		if pr.retriesLeft > 0 {
			pr.retriesLeft--
			pr.deadline = now.Add(pr.timeout)
			retry = append(retry, pr)
		} else {
			delete(d.pending, pr.handle)
			expired = append(expired, pr)
		}
	}
	d.mu.Unlock()

	for _, pr := range retry {
		d.retransmit(pr)
	}
	for _, pr := range expired {
		pr.cb(pr.handle, ErrRequestTimedOut, nil, "", "")
	}
}

func (d *Dispatcher) retransmit(pr *pendingRequest) {
	transport, err := d.engine.boundTransport()
	if err != nil {
		d.failPending(pr, ErrEngineShuttingDown)
		return
	}
	if pr.wire == nil {
		return // still mid-discovery; nothing to resend yet
	}
	if err := transport.SendMessage(pr.wire, pr.transportDomain, pr.transportAddress); err != nil {
		d.engine.Log.Printf("snmpengine: retransmit failed: %v", err)
	}
}

func (d *Dispatcher) failPending(pr *pendingRequest, errInd ErrorIndication) {
	d.mu.Lock()
	delete(d.pending, pr.handle)
	d.mu.Unlock()
	pr.cb(pr.handle, errInd, nil, "", "")
}

func (d *Dispatcher) finishPending(pr *pendingRequest, errInd ErrorIndication, pdu *PDU, contextEngineID, contextName string) {
	d.mu.Lock()
	delete(d.pending, pr.handle)
	d.mu.Unlock()
	pr.cb(pr.handle, errInd, pdu, contextEngineID, contextName)
}

// Shutdown drains every pending request with ErrEngineShuttingDown and
// refuses further sendPdu calls.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	d.shuttingDown = true
	pending := d.pending
	d.pending = make(map[sendPduHandle]*pendingRequest)
	d.mu.Unlock()

	for _, pr := range pending {
		pr.cb(pr.handle, ErrEngineShuttingDown, nil, "", "")
	}
}
