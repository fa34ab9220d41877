// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
)

// wrapSequence prepends a BER SEQUENCE tag and length to the given content.
func wrapSequence(content []byte) ([]byte, error) {
	lenBytes, err := marshalLength(len(content))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(lenBytes)+len(content))
	out = append(out, byte(Sequence))
	out = append(out, lenBytes...)
	return append(out, content...), nil
}

// peekVersion reads just enough of an inbound datagram to learn msgVersion,
// which the dispatcher needs before it knows which Message Processing Model
// to hand the rest of the bytes to.
func peekVersion(wholeMsg []byte) (SnmpVersion, error) {
	if len(wholeMsg) < 2 || PDUType(wholeMsg[0]) != Sequence {
		return 0, fmt.Errorf("peekVersion: not a SEQUENCE")
	}
	_, cursor := parseLength(wholeMsg)
	raw, _, err := parseRawField(wholeMsg[cursor:], "msgVersion")
	if err != nil {
		return 0, err
	}
	v, _ := raw.(int)
	return SnmpVersion(v), nil
}

// outgoingMessage is what a Message Processing Model hands back to the
// dispatcher after PrepareOutgoingMessage: the bytes to put on the wire,
// plus enough bookkeeping for retransmission and response correlation.
type outgoingMessage struct {
	wire          []byte
	msgID         uint32 // v3 only; correlates responses
	requestID     uint32 // v1/v2c correlate by this instead
	version       SnmpVersion
	securityLevel SecurityLevel
}

// incomingMessage is what a Message Processing Model hands back to the
// dispatcher after PrepareDataElements. A security failure (bad digest,
// stale time window, unknown user, ...) is still a successful parse as far
// as this struct is concerned: version plus msgID/requestID are populated
// so the dispatcher can find the pendingRequest this datagram answers,
// errInd names the specific failure, and pdu is nil. Only a message the
// dispatcher can't even correlate (header too mangled to read a msgID or
// requestID out of) is reported via PrepareDataElements' error return
// instead.
type incomingMessage struct {
	version   SnmpVersion
	msgID     uint32
	requestID uint32
	pdu       *PDU
	// errInd is ErrNone on a fully successful parse, or the specific
	// security-model failure (ErrWrongDigest, ErrNotInTimeWindow,
	// ErrUnknownUserName, ErrDecryptionError, ErrUnsupportedSecLevel,
	// ErrUnknownSecurityModel, ErrAuthenticationFailure, ...) otherwise.
	errInd ErrorIndication
	// isReport is set when the decoded PDU is an SNMPv3 Report, which the
	// dispatcher treats specially during engine discovery.
	isReport bool
	// learnedEngineID/Boots/Time are populated only for a Report received
	// during discovery.
	learnedEngineID string
	learnedBoots    uint32
	learnedTime     uint32
	// contextEngineID/contextName echo what the agent scoped the response
	// to, for v3; v1/v2c leave these empty.
	contextEngineID string
	contextName     string
}

// messageProcessingModel is the contract shared by the v1/v2c and v3
// Message Processing Models. PrepareDataElements returns a non-nil error
// only when wholeMsg can't be correlated to any pending request at all
// (truncated header, wrong version); a security-model failure on an
// otherwise well-formed message is reported through the returned
// incomingMessage's errInd field instead, with err == nil, so the
// dispatcher can still find and fail the matching pendingRequest.
type messageProcessingModel interface {
	Version() SnmpVersion
	PrepareOutgoingMessage(req *outboundRequest) (*outgoingMessage, error)
	PrepareDataElements(wholeMsg []byte) (*incomingMessage, error)
}

// outboundRequest carries everything a Message Processing Model needs to
// build one outgoing message: the PDU, the target's security/context
// configuration, and (for v3) the msgMaxSize to advertise.
type outboundRequest struct {
	pdu             *PDU
	contextEngineID string
	contextName     string
	securityName    string
	securityLevel   SecurityLevel
	community       string  // v1/v2c
	usm             *UsmSecurityParameters // v3
	maxMessageSize  uint32
	reportable      bool
}

func newMessageProcessingModel(v SnmpVersion, engine *SnmpEngine) (messageProcessingModel, error) {
	switch v {
	case Version1, Version2c:
		return &mpV1V2c{version: v, engine: engine}, nil
	case Version3:
		return &mpV3{engine: engine}, nil
	default:
		return nil, fmt.Errorf("messageProcessing: unsupported version %v", v)
	}
}
