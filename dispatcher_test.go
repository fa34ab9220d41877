// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func newTestEngineWithMockTransport(t *testing.T) (*SnmpEngine, *MockTransportDispatcher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockTransport := NewMockTransportDispatcher(ctrl)
	mockTransport.EXPECT().RegisterRecvCallback(gomock.Any()).AnyTimes()
	mockTransport.EXPECT().RegisterTimerCallback(gomock.Any(), gomock.Any()).AnyTimes()

	engine, err := NewSnmpEngine(WithBootCounterFile(t.TempDir() + "/boots"))
	require.NoError(t, err)
	require.NoError(t, engine.registerTransportDispatcher(mockTransport))
	return engine, mockTransport
}

// TestSendPduCallbackExactlyOnce checks that a successful response invokes
// the ResponseCallback exactly once, even if the same response is
// delivered twice.
func TestSendPduCallbackExactlyOnce(t *testing.T) {
	engine, mockTransport := newTestEngineWithMockTransport(t)
	engine.securityV1.addSystem(&v1System{SecurityName: "public", CommunityName: "public"})

	d, err := NewDispatcher(engine)
	require.NoError(t, err)

	var sentWire []byte
	mockTransport.EXPECT().SendMessage(gomock.Any(), "udp", "127.0.0.1:161").DoAndReturn(
		func(wire []byte, domain, addr string) error {
			sentWire = append([]byte(nil), wire...)
			return nil
		})

	req := &outboundRequest{
		pdu:       &PDU{Type: GetRequest, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: Null}}},
		community: "public",
	}

	var mu sync.Mutex
	var callCount int
	var gotPDU *PDU
	var gotErrInd ErrorIndication
	done := make(chan struct{})

	_, err = d.sendPdu(Version2c, req, "udp", "127.0.0.1:161", 2*time.Second, 1, func(handle sendPduHandle, errInd ErrorIndication, pdu *PDU, ctxEngineID, ctxName string) {
		mu.Lock()
		callCount++
		gotPDU = pdu
		gotErrInd = errInd
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)
	require.NotNil(t, sentWire)

	// Simulate the agent's GetResponse using the same requestID this
	// dispatcher assigned.
	serverMP, err := newMessageProcessingModel(Version2c, engine)
	require.NoError(t, err)
	respReq := &outboundRequest{
		pdu:       &PDU{Type: GetResponse, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: OctetString, Value: "test system"}}},
		community: "public",
	}
	// Borrow the requestID the client used by decoding sentWire.
	decoded, _, err := unmarshalPDU(sentWire, bytesCursorAfterCommunity(sentWire))
	require.NoError(t, err)
	respReq.pdu.RequestID = decoded.RequestID
	respOut, err := serverMP.PrepareOutgoingMessage(respReq)
	require.NoError(t, err)

	d.receiveMessage("udp", "127.0.0.1:161", respOut.wire)

	<-done
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, callCount)
	require.Equal(t, ErrNone, gotErrInd)
	require.NotNil(t, gotPDU)
	require.Equal(t, "test system", gotPDU.VarBinds[0].Value)

	// A second, duplicate delivery of the same response must not invoke the
	// callback again - the pending entry was already consumed.
	d.receiveMessage("udp", "127.0.0.1:161", respOut.wire)
	mu.Lock()
	require.Equal(t, 1, callCount)
	mu.Unlock()
}

// TestReceiveMessageFailsMatchingRequestOnCommunityMismatch checks that a
// response carrying an unrecognised community still correlates to the
// pendingRequest it answers and fails it with ErrAuthenticationFailure,
// instead of being dropped as an uncorrelated datagram (which would leave
// the caller waiting out the full retry/timeout budget for no reason).
func TestReceiveMessageFailsMatchingRequestOnCommunityMismatch(t *testing.T) {
	engine, mockTransport := newTestEngineWithMockTransport(t)
	engine.securityV1.addSystem(&v1System{SecurityName: "public", CommunityName: "public"})

	d, err := NewDispatcher(engine)
	require.NoError(t, err)

	var sentWire []byte
	mockTransport.EXPECT().SendMessage(gomock.Any(), "udp", "127.0.0.1:161").DoAndReturn(
		func(wire []byte, domain, addr string) error {
			sentWire = append([]byte(nil), wire...)
			return nil
		})

	req := &outboundRequest{
		pdu:       &PDU{Type: GetRequest, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: Null}}},
		community: "public",
	}

	done := make(chan ErrorIndication, 1)
	var gotPDU *PDU
	_, err = d.sendPdu(Version2c, req, "udp", "127.0.0.1:161", 2*time.Second, 1, func(handle sendPduHandle, errInd ErrorIndication, pdu *PDU, ctxEngineID, ctxName string) {
		gotPDU = pdu
		done <- errInd
	})
	require.NoError(t, err)
	require.NotNil(t, sentWire)

	serverMP, err := newMessageProcessingModel(Version2c, engine)
	require.NoError(t, err)
	respReq := &outboundRequest{
		pdu:       &PDU{Type: GetResponse, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: OctetString, Value: "test system"}}},
		community: "not-the-configured-community",
	}
	decoded, _, err := unmarshalPDU(sentWire, bytesCursorAfterCommunity(sentWire))
	require.NoError(t, err)
	respReq.pdu.RequestID = decoded.RequestID
	respOut, err := serverMP.PrepareOutgoingMessage(respReq)
	require.NoError(t, err)

	d.receiveMessage("udp", "127.0.0.1:161", respOut.wire)

	select {
	case errInd := <-done:
		require.Equal(t, ErrAuthenticationFailure, errInd)
		require.Nil(t, gotPDU)
	case <-time.After(time.Second):
		t.Fatal("callback never fired; community mismatch was dropped instead of correlated")
	}
}

// bytesCursorAfterCommunity walks past the SEQUENCE/version/community
// header of a v1/v2c message to find where the PDU begins, for tests that
// need to peek at the requestID the client assigned.
func bytesCursorAfterCommunity(wholeMsg []byte) int {
	_, cursor := parseLength(wholeMsg)
	_, count, _ := parseRawField(wholeMsg[cursor:], "version")
	cursor += count
	_, count, _ = parseRawField(wholeMsg[cursor:], "community")
	cursor += count
	return cursor
}

// TestSendPduTimeoutAfterRetries covers the retransmission/timeout path:
// no response ever arrives, and retries exhaust before the ResponseCallback
// fires with ErrRequestTimedOut.
func TestSendPduTimeoutAfterRetries(t *testing.T) {
	engine, mockTransport := newTestEngineWithMockTransport(t)
	engine.securityV1.addSystem(&v1System{SecurityName: "public", CommunityName: "public"})

	d, err := NewDispatcher(engine)
	require.NoError(t, err)

	sendCount := 0
	mockTransport.EXPECT().SendMessage(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(wire []byte, domain, addr string) error {
			sendCount++
			return nil
		}).AnyTimes()

	req := &outboundRequest{
		pdu:       &PDU{Type: GetRequest, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: Null}}},
		community: "public",
	}

	done := make(chan ErrorIndication, 1)
	_, err = d.sendPdu(Version2c, req, "udp", "127.0.0.1:161", 10*time.Millisecond, 2, func(handle sendPduHandle, errInd ErrorIndication, pdu *PDU, ctxEngineID, ctxName string) {
		done <- errInd
	})
	require.NoError(t, err)

	// Drive the retry/timeout clock manually instead of waiting on the
	// mocked transport's timer registration.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.receiveTimerTick()
		select {
		case errInd := <-done:
			require.Equal(t, ErrRequestTimedOut, errInd)
			require.GreaterOrEqual(t, sendCount, 2) // original send + at least one retry
			return
		default:
			time.Sleep(15 * time.Millisecond)
		}
	}
	t.Fatal("timed out waiting for ErrRequestTimedOut")
}

// TestDispatcherShutdownDrainsPending covers the shutdown-drain behaviour:
// every outstanding request is failed with ErrEngineShuttingDown, and a
// subsequent sendPdu is rejected outright.
func TestDispatcherShutdownDrainsPending(t *testing.T) {
	engine, mockTransport := newTestEngineWithMockTransport(t)
	engine.securityV1.addSystem(&v1System{SecurityName: "public", CommunityName: "public"})

	d, err := NewDispatcher(engine)
	require.NoError(t, err)
	mockTransport.EXPECT().SendMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	req := &outboundRequest{
		pdu:       &PDU{Type: GetRequest, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: Null}}},
		community: "public",
	}

	done := make(chan ErrorIndication, 1)
	_, err = d.sendPdu(Version2c, req, "udp", "127.0.0.1:161", time.Second, 1, func(handle sendPduHandle, errInd ErrorIndication, pdu *PDU, ctxEngineID, ctxName string) {
		done <- errInd
	})
	require.NoError(t, err)

	d.Shutdown()
	require.Equal(t, ErrEngineShuttingDown, <-done)

	_, err = d.sendPdu(Version2c, req, "udp", "127.0.0.1:161", time.Second, 1, func(sendPduHandle, ErrorIndication, *PDU, string, string) {})
	require.Error(t, err)
}
