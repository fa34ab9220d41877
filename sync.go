// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"sync"
	"time"
)

// syncResult carries one ResponseCallback invocation across to the blocking
// caller of SyncRequest.
type syncResult struct {
	pdu             *PDU
	contextEngineID string
	contextName     string
	errInd          ErrorIndication
}

// SyncRequest is the synchronous convenience wrapper: it issues one
// sendPdu and pumps the bound transport's event loop (RunDispatcher)
// until the matching callback fires or an overall deadline expires,
// mirroring pysnmp's cmdgen.CommandGenerator.getCmd() calling
// SnmpEngine.transportDispatcher.runDispatcher() under the hood so callers
// don't have to manage the dispatcher loop themselves.
func SyncRequest(engine *SnmpEngine, d *Dispatcher, version SnmpVersion, req *outboundRequest, transportDomain, transportAddress string, timeout time.Duration, retries int) (pdu *PDU, contextEngineID, contextName string, errInd ErrorIndication, err error) {
	transport, berr := engine.boundTransport()
	if berr != nil {
		return nil, "", "", ErrNone, berr
	}

	done := make(chan syncResult, 1)
	stop := make(chan struct{})
	// cb runs on the dispatcher's receive-path goroutine; the select below
	// runs on this call's own goroutine. Both can race to close stop, so
	// the close itself needs sync.Once rather than a plain bool guard.
	var stopOnce sync.Once
	closeStop := func() {
		stopOnce.Do(func() { close(stop) })
	}

	cb := func(handle sendPduHandle, ei ErrorIndication, p *PDU, ctxEngineID, ctxName string) {
		select {
		case done <- syncResult{pdu: p, contextEngineID: ctxEngineID, contextName: ctxName, errInd: ei}:
		default:
		}
		closeStop()
	}

	_, serr := d.sendPdu(version, req, transportDomain, transportAddress, timeout, retries, cb)
	if serr != nil {
		return nil, "", "", ErrNone, serr
	}

	runErr := make(chan error, 1)
	go func() { runErr <- transport.RunDispatcher(stop) }()

	overall := timeout * time.Duration(retries+1)
	overall += timeout // margin for the final attempt's own wait plus discovery round-trip

	select {
	case r := <-done:
		closeStop()
		return r.pdu, r.contextEngineID, r.contextName, r.errInd, nil
	case rerr := <-runErr:
		closeStop()
		// RunDispatcher also returns once the callback has closed stop; its
		// result is already in done by then.
		select {
		case r := <-done:
			return r.pdu, r.contextEngineID, r.contextName, r.errInd, nil
		default:
		}
		if rerr != nil {
			return nil, "", "", ErrNone, fmt.Errorf("snmpengine: transport dispatcher stopped: %w", rerr)
		}
		return nil, "", "", ErrRequestTimedOut, nil
	case <-time.After(overall):
		closeStop()
		return nil, "", "", ErrRequestTimedOut, nil
	}
}
