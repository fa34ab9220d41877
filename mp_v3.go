// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// errUnknownSecurityModel marks an inbound message whose msgSecurityModel
// isn't USM. unmarshalMessageV3 still returns the partially-populated msg
// (msgID and msgFlags are already parsed by that point) alongside this
// sentinel so PrepareDataElements can still correlate the datagram to a
// pendingRequest and fail it with ErrUnknownSecurityModel instead of
// dropping it.
var errUnknownSecurityModel = errors.New("mpV3: unsupported security model")

// messageV3 is the in-flight representation of one SNMPv3 message: the
// msgGlobalData, the USM security parameters, and either the plaintext or
// (once generateRequestMessage has run) the encrypted scopedPDU.
type messageV3 struct {
	MsgID          uint32
	MsgMaxSize     uint32
	MsgFlags       SnmpV3MsgFlags
	SecurityModel  SecurityModel

	secParams *UsmSecurityParameters

	contextEngineID string
	contextName     string
	pdu             *PDU
	pduBytes        []byte // inbound only: raw PDU bytes sliced out of the scopedPDU

	plaintextScopedPDU []byte
	encryptedScopedPDU []byte

	wire []byte
}

// parseScopedPDU splits a decoded {contextEngineID, contextName, PDU}
// SEQUENCE (the plaintext form of a scopedPDU) into its three fields. Used
// both for noAuthNoPriv/authNoPriv inbound messages
// (scopedPDU arrives plaintext) and for authPriv ones, after USM decryption
// has recovered the plaintext bytes.
func parseScopedPDU(data []byte) (contextEngineID, contextName string, pduBytes []byte, err error) {
	if len(data) < 2 || PDUType(data[0]) != Sequence {
		return "", "", nil, fmt.Errorf("mpV3: invalid scopedPDU header")
	}
	length, cursor := parseLength(data)
	end := length

	rawID, count, err := parseRawField(data[cursor:], "contextEngineID")
	if err != nil {
		return "", "", nil, err
	}
	cursor += count
	contextEngineID, _ = rawID.(string)

	rawName, count, err := parseRawField(data[cursor:], "contextName")
	if err != nil {
		return "", "", nil, err
	}
	cursor += count
	contextName, _ = rawName.(string)

	if end > len(data) {
		end = len(data)
	}
	return contextEngineID, contextName, append([]byte(nil), data[cursor:end]...), nil
}

// mpV3 is the Message Processing Model for SNMPv3.
type mpV3 struct {
	engine *SnmpEngine
}

func (mp *mpV3) Version() SnmpVersion { return Version3 }

// PrepareOutgoingMessage builds and authenticates/encrypts an outgoing v3
// message. Engine discovery is the dispatcher's job, not this function's:
// PrepareOutgoingMessage assumes req.usm.AuthoritativeEngineID is already
// known, and the dispatcher is responsible for queuing a discovery
// exchange first when it is not (see dispatcher.go sendPdu).
func (mp *mpV3) PrepareOutgoingMessage(req *outboundRequest) (*outgoingMessage, error) {
	sp := req.usm
	if sp == nil {
		return nil, fmt.Errorf("mpV3: outboundRequest has no USM security parameters")
	}

	req.pdu.RequestID = mp.engine.nextRequestID()

	contextEngineID := req.contextEngineID
	if contextEngineID == "" {
		contextEngineID = sp.AuthoritativeEngineID
	}

	msg := &messageV3{
		MsgID:           mp.engine.nextMsgID(),
		MsgMaxSize:      req.maxMessageSize,
		MsgFlags:        msgFlagsFor(req.securityLevel, req.reportable),
		SecurityModel:   SecurityModelUSM,
		secParams:       sp,
		contextEngineID: contextEngineID,
		contextName:     req.contextName,
		pdu:             req.pdu,
	}

	scopedPDU, err := marshalScopedPDU(msg.contextEngineID, msg.contextName, msg.pdu)
	if err != nil {
		return nil, err
	}
	msg.plaintextScopedPDU = scopedPDU

	if err := mp.engine.usm.generateRequestMessage(msg); err != nil {
		return nil, err
	}

	return &outgoingMessage{
		wire:          msg.wire,
		msgID:         msg.MsgID,
		requestID:     req.pdu.RequestID,
		version:       Version3,
		securityLevel: req.securityLevel,
	}, nil
}

// PrepareDataElements decodes the outer wrapper, verifies/decrypts via USM,
// and surfaces either a learned Report (during discovery), a correlated
// response PDU, or - on a security-model failure - an incomingMessage
// carrying just msgID and the specific errInd so the dispatcher can still
// fail the matching pendingRequest instead of dropping the datagram.
func (mp *mpV3) PrepareDataElements(wholeMsg []byte) (*incomingMessage, error) {
	msg, authParamStart, raw, err := unmarshalMessageV3(wholeMsg)
	if errors.Is(err, errUnknownSecurityModel) {
		return &incomingMessage{version: Version3, msgID: msg.MsgID, errInd: ErrUnknownSecurityModel}, nil
	}
	if err != nil {
		return nil, err
	}

	errInd, procErr := mp.engine.usm.processIncomingMessage(msg, raw, authParamStart)
	if errInd != ErrNone {
		mp.engine.Log.Printf("snmpengine: usm rejected message %d: %v", msg.MsgID, procErr)
		return &incomingMessage{version: Version3, msgID: msg.MsgID, errInd: errInd}, nil
	}

	if msg.MsgFlags&flagPriv != 0 {
		contextEngineID, contextName, pduBytes, err := parseScopedPDU(msg.plaintextScopedPDU)
		if err != nil {
			return nil, err
		}
		msg.contextEngineID = contextEngineID
		msg.contextName = contextName
		msg.pduBytes = pduBytes
	}

	pdu, _, err := unmarshalPDU(msg.pduBytes, 0)
	if err != nil {
		return nil, err
	}

	result := &incomingMessage{
		version:         Version3,
		msgID:           msg.MsgID,
		requestID:       pdu.RequestID,
		pdu:             pdu,
		contextEngineID: msg.contextEngineID,
		contextName:     msg.contextName,
	}
	if pdu.Type == Report {
		result.isReport = true
		result.learnedEngineID = msg.secParams.AuthoritativeEngineID
		result.learnedBoots = msg.secParams.AuthoritativeEngineBoots
		result.learnedTime = msg.secParams.AuthoritativeEngineTime
	}
	return result, nil
}

// marshalScopedPDU builds the {contextEngineID, contextName, PDU} sequence
// carried inside a v3 message (encrypted under authPriv).
func marshalScopedPDU(contextEngineID, contextName string, pdu *PDU) ([]byte, error) {
	var buf bytes.Buffer

	idLen, err := marshalLength(len(contextEngineID))
	if err != nil {
		return nil, err
	}
	buf.Write(append([]byte{byte(OctetString)}, idLen...))
	buf.WriteString(contextEngineID)

	nameLen, err := marshalLength(len(contextName))
	if err != nil {
		return nil, err
	}
	buf.Write(append([]byte{byte(OctetString)}, nameLen...))
	buf.WriteString(contextName)

	pduBytes, err := pdu.marshal()
	if err != nil {
		return nil, err
	}
	buf.Write(pduBytes)

	return wrapSequence(buf.Bytes())
}

// marshalMessageV3 builds the full wire message: version, msgGlobalData,
// msgSecurityParameters, and the (possibly now-encrypted) scopedPDU. It
// returns authParamStart, the byte offset of the 12-byte auth-parameter
// placeholder within the returned buffer, so the caller can overwrite it
// with the computed HMAC.
func marshalMessageV3(msg *messageV3) (wire []byte, authParamStart uint32, err error) {
	var body bytes.Buffer
	body.Write([]byte{byte(Integer), 1, byte(Version3)})

	header, err := marshalHeaderV3(msg)
	if err != nil {
		return nil, 0, err
	}
	body.Write([]byte{byte(Sequence), byte(len(header))})
	body.Write(header)

	secParamBytes, localAuthStart, err := marshalUsmSecurityParameters(msg.secParams, msg.MsgFlags)
	if err != nil {
		return nil, 0, err
	}
	body.Write([]byte{byte(OctetString)})
	secLen, err := marshalLength(len(secParamBytes))
	if err != nil {
		return nil, 0, err
	}
	body.Write(secLen)
	authParamStart = localAuthStart + uint32(body.Len())
	body.Write(secParamBytes)

	var scopedPDU []byte
	if msg.MsgFlags&flagPriv != 0 {
		lenBytes, err := marshalLength(len(msg.encryptedScopedPDU))
		if err != nil {
			return nil, 0, err
		}
		scopedPDU = append([]byte{byte(OctetString)}, lenBytes...)
		scopedPDU = append(scopedPDU, msg.encryptedScopedPDU...)
	} else {
		scopedPDU = msg.plaintextScopedPDU
	}
	body.Write(scopedPDU)

	wire, err = wrapSequence(body.Bytes())
	if err != nil {
		return nil, 0, err
	}
	authParamStart += uint32(len(wire) - body.Len())
	return wire, authParamStart, nil
}

func marshalHeaderV3(msg *messageV3) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{byte(Integer), 4})
	if err := binary.Write(&buf, binary.BigEndian, msg.MsgID); err != nil {
		return nil, err
	}
	maxSize := marshalUvarInt(msg.MsgMaxSize)
	buf.Write([]byte{byte(Integer), byte(len(maxSize))})
	buf.Write(maxSize)
	buf.Write([]byte{byte(OctetString), 1, byte(msg.MsgFlags)})
	buf.Write([]byte{byte(Integer), 1, byte(msg.SecurityModel)})
	return buf.Bytes(), nil
}

// marshalUsmSecurityParameters builds the USM msgSecurityParameters SEQUENCE
// and returns the offset of the auth-parameter placeholder relative to the
// start of the returned (already sequence-wrapped) bytes.
func marshalUsmSecurityParameters(sp *UsmSecurityParameters, flags SnmpV3MsgFlags) ([]byte, uint32, error) {
	var buf bytes.Buffer
	var authParamStart uint32

	buf.Write([]byte{byte(OctetString), byte(len(sp.AuthoritativeEngineID))})
	buf.WriteString(sp.AuthoritativeEngineID)

	bootsBytes := marshalUvarInt(sp.AuthoritativeEngineBoots)
	buf.Write([]byte{byte(Integer), byte(len(bootsBytes))})
	buf.Write(bootsBytes)

	timeBytes := marshalUvarInt(sp.AuthoritativeEngineTime)
	buf.Write([]byte{byte(Integer), byte(len(timeBytes))})
	buf.Write(timeBytes)

	buf.Write([]byte{byte(OctetString), byte(len(sp.UserName))})
	buf.WriteString(sp.UserName)

	authParamStart = uint32(buf.Len() + 2)
	if flags&flagAuth != 0 {
		buf.Write([]byte{byte(OctetString), 12, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	} else {
		buf.Write([]byte{byte(OctetString), 0})
	}

	if flags&flagPriv != 0 {
		privLen, err := marshalLength(len(sp.PrivacyParameters))
		if err != nil {
			return nil, 0, err
		}
		buf.Write([]byte{byte(OctetString)})
		buf.Write(privLen)
		buf.Write(sp.PrivacyParameters)
	} else {
		buf.Write([]byte{byte(OctetString), 0})
	}

	seqLen, err := marshalLength(buf.Len())
	if err != nil {
		return nil, 0, err
	}
	seq := append([]byte{byte(Sequence)}, seqLen...)
	authParamStart += uint32(len(seq))
	return append(seq, buf.Bytes()...), authParamStart, nil
}

// unmarshalMessageV3 parses the outer wrapper and USM security parameters
// of an inbound v3 message, returning the partially-populated messageV3
// (contextEngineID/contextName/pduBytes still need scopedPDU decryption
// before they are valid - see processIncomingMessage), the byte offset of
// the auth-parameter placeholder within raw (for re-verification), and raw
// itself.
func unmarshalMessageV3(wholeMsg []byte) (msg *messageV3, authParamStart uint32, raw []byte, err error) {
	raw = wholeMsg
	if len(wholeMsg) < 2 || PDUType(wholeMsg[0]) != Sequence {
		return nil, 0, nil, fmt.Errorf("mpV3: invalid message header")
	}
	_, cursor := parseLength(wholeMsg)

	rawVersion, count, err := parseRawField(wholeMsg[cursor:], "version")
	if err != nil {
		return nil, 0, nil, err
	}
	cursor += count
	if v, _ := rawVersion.(int); SnmpVersion(v) != Version3 {
		return nil, 0, nil, fmt.Errorf("mpV3: expected version 3, got %d", v)
	}

	if PDUType(wholeMsg[cursor]) != Sequence {
		return nil, 0, nil, fmt.Errorf("mpV3: invalid msgGlobalData header")
	}
	_, headerLen := parseLength(wholeMsg[cursor:])
	cursor += headerLen

	msg = &messageV3{secParams: &UsmSecurityParameters{}}

	rawMsgID, count, err := parseRawField(wholeMsg[cursor:], "msgID")
	if err != nil {
		return nil, 0, nil, err
	}
	cursor += count
	if id, ok := rawMsgID.(int); ok {
		msg.MsgID = uint32(id)
	}

	_, count, err = parseRawField(wholeMsg[cursor:], "msgMaxSize")
	if err != nil {
		return nil, 0, nil, err
	}
	cursor += count

	rawFlags, count, err := parseRawField(wholeMsg[cursor:], "msgFlags")
	if err != nil {
		return nil, 0, nil, err
	}
	cursor += count
	if flagStr, ok := rawFlags.(string); ok && len(flagStr) > 0 {
		msg.MsgFlags = SnmpV3MsgFlags(flagStr[0])
	}

	rawSecModel, count, err := parseRawField(wholeMsg[cursor:], "msgSecurityModel")
	if err != nil {
		return nil, 0, nil, err
	}
	cursor += count
	if sm, ok := rawSecModel.(int); ok {
		msg.SecurityModel = SecurityModel(sm)
	}

	if PDUType(wholeMsg[cursor]) != OctetString {
		return nil, 0, nil, fmt.Errorf("mpV3: invalid msgSecurityParameters header")
	}
	_, secHeaderLen := parseLength(wholeMsg[cursor:])
	secParamsStart := cursor + secHeaderLen
	cursor = secParamsStart

	if msg.SecurityModel != SecurityModelUSM {
		return msg, 0, raw, errUnknownSecurityModel
	}
	cursor, authParamStart, err = unmarshalUsmSecurityParameters(wholeMsg, cursor, msg.secParams)
	if err != nil {
		return nil, 0, nil, err
	}

	// scopedPDU: either OctetString ciphertext (authPriv) or a plaintext
	// Sequence.
	switch PDUType(wholeMsg[cursor]) {
	case OctetString:
		length, headerLen := parseLength(wholeMsg[cursor:])
		msg.encryptedScopedPDU = append([]byte(nil), wholeMsg[cursor+headerLen:length+cursor]...)
		msg.MsgFlags |= flagPriv // defensive; already set from header
	case Sequence:
		contextEngineID, contextName, pduBytes, perr := parseScopedPDU(wholeMsg[cursor:])
		if perr != nil {
			return nil, 0, nil, perr
		}
		msg.contextEngineID = contextEngineID
		msg.contextName = contextName
		msg.pduBytes = pduBytes
	default:
		return nil, 0, nil, fmt.Errorf("mpV3: invalid scopedPDU header")
	}

	return msg, authParamStart, raw, nil
}

func unmarshalUsmSecurityParameters(buf []byte, cursor int, sp *UsmSecurityParameters) (newCursor int, authParamStart uint32, err error) {
	if PDUType(buf[cursor]) != Sequence {
		return 0, 0, fmt.Errorf("usm: invalid security parameters header")
	}
	_, headerLen := parseLength(buf[cursor:])
	cursor += headerLen

	rawEngineID, count, err := parseRawField(buf[cursor:], "msgAuthoritativeEngineID")
	if err != nil {
		return 0, 0, err
	}
	cursor += count
	sp.AuthoritativeEngineID, _ = rawEngineID.(string)

	rawBoots, count, err := parseRawField(buf[cursor:], "msgAuthoritativeEngineBoots")
	if err != nil {
		return 0, 0, err
	}
	cursor += count
	if v, ok := rawBoots.(int); ok {
		sp.AuthoritativeEngineBoots = uint32(v)
	}

	rawTime, count, err := parseRawField(buf[cursor:], "msgAuthoritativeEngineTime")
	if err != nil {
		return 0, 0, err
	}
	cursor += count
	if v, ok := rawTime.(int); ok {
		sp.AuthoritativeEngineTime = uint32(v)
	}

	rawUser, count, err := parseRawField(buf[cursor:], "msgUserName")
	if err != nil {
		return 0, 0, err
	}
	cursor += count
	sp.UserName, _ = rawUser.(string)

	_, authHeaderLen := parseLength(buf[cursor:])
	authParamStart = uint32(cursor + authHeaderLen)
	rawAuthParams, count, err := parseRawField(buf[cursor:], "msgAuthenticationParameters")
	if err != nil {
		return 0, 0, err
	}
	if authParams, ok := rawAuthParams.(string); ok {
		sp.AuthenticationParameters = authParams
	}
	cursor += count

	rawPrivParams, count, err := parseRawField(buf[cursor:], "msgPrivacyParameters")
	if err != nil {
		return 0, 0, err
	}
	cursor += count
	if privParams, ok := rawPrivParams.(string); ok {
		sp.PrivacyParameters = []byte(privParams)
	}

	return cursor, authParamStart, nil
}
