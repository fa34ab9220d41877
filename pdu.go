// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PDU is the application-layer contents common to every request/response
// PDU type: a request ID, error status/index (ignored by GET-BULK, which
// overloads those two fields as nonRepeaters/maxRepetitions), and a varbind
// list.
type PDU struct {
	Type           PDUType
	RequestID      uint32
	ErrorStatus    SNMPError
	ErrorIndex     uint8
	NonRepeaters   uint8
	MaxRepetitions uint8
	VarBinds       []VarBind
}

// marshal encodes a PDU's BER body: requestID, error/index (or
// nonRepeaters/maxRepetitions for GET-BULK), and the varbind list, wrapped
// in the PDU's application tag.
func (p *PDU) marshal() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write([]byte{byte(Integer), 4})
	if err := binary.Write(&buf, binary.BigEndian, p.RequestID); err != nil {
		return nil, err
	}

	if p.Type == GetBulkRequest {
		buf.Write([]byte{byte(Integer), 1, p.NonRepeaters})
		buf.Write([]byte{byte(Integer), 1, p.MaxRepetitions})
	} else {
		buf.Write([]byte{byte(Integer), 1, byte(p.ErrorStatus)})
		buf.Write([]byte{byte(Integer), 1, p.ErrorIndex})
	}

	vbl, err := marshalVarBindList(p.VarBinds)
	if err != nil {
		return nil, err
	}
	buf.Write(vbl)

	var out bytes.Buffer
	out.WriteByte(byte(p.Type))
	lenBytes, err := marshalLength(buf.Len())
	if err != nil {
		return nil, err
	}
	out.Write(lenBytes)
	buf.WriteTo(&out)
	return out.Bytes(), nil
}

func marshalVarBindList(vbs []VarBind) ([]byte, error) {
	var vblBuf bytes.Buffer
	for _, vb := range vbs {
		enc, err := marshalVarBind(vb)
		if err != nil {
			return nil, err
		}
		vblBuf.Write(enc)
	}
	lenBytes, err := marshalLength(vblBuf.Len())
	if err != nil {
		return nil, err
	}
	result := []byte{byte(Sequence)}
	result = append(result, lenBytes...)
	return append(result, vblBuf.Bytes()...), nil
}

func marshalVarBind(vb VarBind) ([]byte, error) {
	oid, err := marshalOID(vb.Name)
	if err != nil {
		return nil, err
	}
	var tmp bytes.Buffer
	tmp.Write([]byte{byte(ObjectIdentifier), byte(len(oid))})
	tmp.Write(oid)

	var valBuf []byte
	valType := vb.Type

	switch vb.Type {
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		valBuf = []byte{byte(vb.Type), 0x00}
	case Integer:
		var intBytes []byte
		switch value := vb.Value.(type) {
		case int:
			intBytes, err = marshalInt16(value)
		case int32:
			intBytes = marshalUvarInt(uint32(value))
		default:
			return nil, fmt.Errorf("marshalVarBind: Integer value of unsupported type %T", vb.Value)
		}
		if err != nil {
			return nil, err
		}
		valBuf = append([]byte{byte(Integer), byte(len(intBytes))}, intBytes...)
	case Counter32, Gauge32, TimeTicks, Uinteger32:
		value, ok := vb.Value.(uint32)
		if !ok {
			return nil, fmt.Errorf("marshalVarBind: %v value must be uint32, got %T", vb.Type, vb.Value)
		}
		intBytes := marshalUvarInt(value)
		valBuf = append([]byte{byte(vb.Type), byte(len(intBytes))}, intBytes...)
	case OctetString:
		var octets []byte
		switch value := vb.Value.(type) {
		case []byte:
			octets = value
		case string:
			octets = []byte(value)
		default:
			return nil, fmt.Errorf("marshalVarBind: OctetString value must be []byte or string, got %T", vb.Value)
		}
		lenBytes, lerr := marshalLength(len(octets))
		if lerr != nil {
			return nil, lerr
		}
		valBuf = append([]byte{byte(OctetString)}, lenBytes...)
		valBuf = append(valBuf, octets...)
	case ObjectIdentifier:
		value, ok := vb.Value.(string)
		if !ok {
			return nil, fmt.Errorf("marshalVarBind: ObjectIdentifier value must be string, got %T", vb.Value)
		}
		oidBytes, oerr := marshalOID(value)
		if oerr != nil {
			return nil, oerr
		}
		valBuf = append([]byte{byte(ObjectIdentifier), byte(len(oidBytes))}, oidBytes...)
	default:
		return nil, fmt.Errorf("marshalVarBind: unsupported BER type %#x", byte(valType))
	}

	tmp.Write(valBuf)

	var out bytes.Buffer
	out.WriteByte(byte(Sequence))
	lenBytes, err := marshalLength(tmp.Len())
	if err != nil {
		return nil, err
	}
	out.Write(lenBytes)
	tmp.WriteTo(&out)
	return out.Bytes(), nil
}

// unmarshalPDU parses a PDU's application tag and body starting at
// buf[cursor], returning the decoded PDU and the cursor position just past
// it.
func unmarshalPDU(buf []byte, cursor int) (*PDU, int, error) {
	if cursor >= len(buf) {
		return nil, 0, fmt.Errorf("unmarshalPDU: cursor past end of buffer")
	}
	pdu := &PDU{Type: PDUType(buf[cursor])}
	_, headerLen := parseLength(buf[cursor:])
	cursor += headerLen

	rawReqID, count, err := parseRawField(buf[cursor:], "requestID")
	if err != nil {
		return nil, 0, err
	}
	cursor += count
	if id, ok := rawReqID.(int); ok {
		pdu.RequestID = uint32(id)
	}

	rawA, count, err := parseRawField(buf[cursor:], "errorStatusOrNonRepeaters")
	if err != nil {
		return nil, 0, err
	}
	cursor += count
	rawB, count, err := parseRawField(buf[cursor:], "errorIndexOrMaxRepetitions")
	if err != nil {
		return nil, 0, err
	}
	cursor += count
	if pdu.Type == GetBulkRequest {
		if v, ok := rawA.(int); ok {
			pdu.NonRepeaters = uint8(v)
		}
		if v, ok := rawB.(int); ok {
			pdu.MaxRepetitions = uint8(v)
		}
	} else {
		if v, ok := rawA.(int); ok {
			pdu.ErrorStatus = SNMPError(v)
		}
		if v, ok := rawB.(int); ok {
			pdu.ErrorIndex = uint8(v)
		}
	}

	if cursor >= len(buf) || PDUType(buf[cursor]) != Sequence {
		return nil, 0, fmt.Errorf("unmarshalPDU: expected varbind-list SEQUENCE")
	}
	vblLen, vblHeaderLen := parseLength(buf[cursor:])
	vblEnd := cursor + vblLen
	cursor += vblHeaderLen

	for cursor < vblEnd {
		vb, next, err := unmarshalVarBind(buf, cursor)
		if err != nil {
			return nil, 0, err
		}
		pdu.VarBinds = append(pdu.VarBinds, vb)
		cursor = next
	}
	return pdu, cursor, nil
}

func unmarshalVarBind(buf []byte, cursor int) (VarBind, int, error) {
	if cursor >= len(buf) || PDUType(buf[cursor]) != Sequence {
		return VarBind{}, 0, fmt.Errorf("unmarshalVarBind: expected SEQUENCE")
	}
	seqLen, seqHeaderLen := parseLength(buf[cursor:])
	end := cursor + seqLen
	cursor += seqHeaderLen

	rawName, count, err := parseRawField(buf[cursor:], "varbind name")
	if err != nil {
		return VarBind{}, 0, err
	}
	cursor += count
	name, _ := rawName.(string)

	if cursor >= len(buf) {
		return VarBind{}, 0, fmt.Errorf("unmarshalVarBind: truncated value")
	}
	valType := PDUType(buf[cursor])
	length, headerLen := parseLength(buf[cursor:])
	content := buf[cursor+headerLen : cursor+length]

	vb := VarBind{Name: name, Type: valType}
	switch valType {
	case Integer:
		vb.Value = parseInt(content)
	case Counter32, Gauge32, TimeTicks, Uinteger32:
		vb.Value = parseUint32(content)
	case OctetString:
		vb.Value = string(content)
	case Opaque:
		vb.Value = append([]byte(nil), content...)
	case ObjectIdentifier:
		oid, err := parseOID(content)
		if err != nil {
			return VarBind{}, 0, err
		}
		vb.Value = oid
	case IPAddress:
		vb.Value = append([]byte(nil), content...)
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		vb.Value = nil
	}

	return vb, end, nil
}
