// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"fmt"
)

// mpV1V2c is the Message Processing Model for SNMPv1 and SNMPv2c: wrap the
// PDU in {version, community, PDU}, no engine discovery, security
// delegated to the community string.
type mpV1V2c struct {
	version SnmpVersion
	engine  *SnmpEngine
}

func (mp *mpV1V2c) Version() SnmpVersion { return mp.version }

func (mp *mpV1V2c) PrepareOutgoingMessage(req *outboundRequest) (*outgoingMessage, error) {
	// A PDU that already carries a request-id (e.g. a response echoing the
	// request's) keeps it; otherwise a fresh one is allocated.
	if req.pdu.RequestID == 0 {
		req.pdu.RequestID = mp.engine.nextRequestID()
	}

	pduBytes, err := req.pdu.marshal()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	body.Write([]byte{byte(Integer), 1, byte(mp.version)})
	body.Write([]byte{byte(OctetString), byte(len(req.community))})
	body.WriteString(req.community)
	body.Write(pduBytes)

	wire, err := wrapSequence(body.Bytes())
	if err != nil {
		return nil, err
	}

	return &outgoingMessage{
		wire:      wire,
		requestID: req.pdu.RequestID,
		version:   mp.version,
	}, nil
}

func (mp *mpV1V2c) PrepareDataElements(wholeMsg []byte) (*incomingMessage, error) {
	if len(wholeMsg) < 2 || PDUType(wholeMsg[0]) != Sequence {
		return nil, fmt.Errorf("mpV1V2c: invalid message header")
	}
	_, cursor := parseLength(wholeMsg)

	rawVersion, count, err := parseRawField(wholeMsg[cursor:], "version")
	if err != nil {
		return nil, err
	}
	cursor += count
	version, _ := rawVersion.(int)

	rawCommunity, count, err := parseRawField(wholeMsg[cursor:], "community")
	if err != nil {
		return nil, err
	}
	cursor += count
	community, _ := rawCommunity.(string)

	pdu, _, err := unmarshalPDU(wholeMsg, cursor)
	if err != nil {
		return nil, err
	}

	// Community verification happens after the PDU is decoded so an
	// unrecognised community still yields a requestID the dispatcher can
	// use to find and fail the matching pendingRequest, instead of a
	// datagram it has to drop for lack of any correlation key.
	if err := mp.engine.securityV1.verifyCommunity(community); err != nil {
		mp.engine.Log.Printf("snmpengine: %v", err)
		return &incomingMessage{
			version:   SnmpVersion(version),
			requestID: pdu.RequestID,
			errInd:    ErrAuthenticationFailure,
		}, nil
	}

	return &incomingMessage{
		version:   SnmpVersion(version),
		requestID: pdu.RequestID,
		pdu:       pdu,
	}, nil
}
