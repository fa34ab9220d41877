// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// This file is the engine's ASN.1/BER codec surface. No ready-made BER
// codec library fits this length-prefixed TLV layer, so it stays
// hand-rolled, in the shape of a marshalLength/parseLength/parseRawField
// trio rather than a general-purpose asn1.Marshal/Unmarshal pair.

// marshalLength BER-encodes a length field: short form for < 0x80, long
// form (0x80|numBytes, then the big-endian bytes) otherwise.
func marshalLength(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("invalid length %d", length)
	}
	if length < 0x80 {
		return []byte{byte(length)}, nil
	}
	lengthBytes := big.NewInt(int64(length)).Bytes()
	return append([]byte{byte(0x80 | len(lengthBytes))}, lengthBytes...), nil
}

// parseLength decodes a BER length field starting at buf[1] (buf[0] is the
// preceding type byte) and returns the total encoded length (type+len+value)
// and the cursor advance past the type+length header.
func parseLength(buf []byte) (length int, cursor int) {
	if len(buf) <= 1 {
		return 0, 1
	}
	if buf[1] <= 0x7f {
		return int(buf[1]) + 2, 2
	}
	numOctets := int(buf[1] & 0x7f)
	cursor = 2 + numOctets
	length = 0
	for i := 0; i < numOctets && 2+i < len(buf); i++ {
		length <<= 8
		length |= int(buf[2+i])
	}
	length += cursor
	return length, cursor
}

// marshalUvarInt marshals an unsigned integer into the minimal big-endian
// two's-complement representation BER requires for INTEGER, prefixing a
// zero byte when the high bit would otherwise flip the sign.
func marshalUvarInt(value uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, value)
	for len(buf) > 1 && buf[0] == 0 && buf[1]&0x80 == 0 {
		buf = buf[1:]
	}
	if buf[0]&0x80 != 0 {
		buf = append([]byte{0}, buf...)
	}
	return buf
}

func marshalInt16(value int) ([]byte, error) {
	if value < -32768 || value > 32767 {
		return nil, fmt.Errorf("marshalInt16: value %d out of int16 range", value)
	}
	return marshalUvarInt(uint32(uint16(int16(value)))), nil
}

func marshalUint32(value uint32) ([]byte, error) {
	return marshalUvarInt(value), nil
}

// marshalOID encodes a dotted OID string as BER OBJECT IDENTIFIER content
// octets per X.690 §8.19: the first two arcs are packed as (40*arc1+arc2),
// subsequent arcs each as base-128 with the continuation bit set on all but
// the last octet.
func marshalOID(oid string) ([]byte, error) {
	oid = strings.TrimPrefix(oid, ".")
	parts := strings.Split(oid, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("marshalOID: %q has fewer than two arcs", oid)
	}
	arcs := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("marshalOID: bad arc %q: %w", p, err)
		}
		arcs[i] = n
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(40*arcs[0] + arcs[1]))
	for _, arc := range arcs[2:] {
		buf.Write(base128(arc))
	}
	return buf.Bytes(), nil
}

func base128(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var out []byte
	for v > 0 {
		out = append([]byte{byte(v & 0x7f)}, out...)
		v >>= 7
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	return out
}

// parseOID decodes BER OBJECT IDENTIFIER content octets into a dotted OID
// string prefixed with ".".
func parseOID(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("parseOID: empty content")
	}
	arc1 := int(content[0]) / 40
	arc2 := int(content[0]) % 40
	out := []string{strconv.Itoa(arc1), strconv.Itoa(arc2)}

	var v uint64
	for _, b := range content[1:] {
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			out = append(out, strconv.FormatUint(v, 10))
			v = 0
		}
	}
	return "." + strings.Join(out, "."), nil
}

// oidToString renders an integer-arc OID (as produced by a MIB resolver) in
// dotted form, e.g. [1 2 3] -> ".1.2.3".
func oidToString(oid []int) string {
	var b strings.Builder
	for _, arc := range oid {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(arc))
	}
	return b.String()
}

// reverseBufBytes returns a new slice with the byte order of buf reversed.
func reverseBufBytes(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}

// parseRawField decodes one BER TLV at the head of buf, returning a Go value
// (int, string or []byte depending on tag), the number of bytes consumed,
// and an error naming the field (for diagnostics) on failure.
func parseRawField(buf []byte, fieldName string) (value interface{}, count int, err error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("parseRawField(%s): buffer too short", fieldName)
	}
	tag := PDUType(buf[0])
	length, headerLen := parseLength(buf)
	if length > len(buf) {
		return nil, 0, fmt.Errorf("parseRawField(%s): length %d exceeds buffer %d", fieldName, length, len(buf))
	}
	content := buf[headerLen:length]

	switch tag {
	case Integer:
		value = parseInt(content)
	case OctetString:
		value = string(content)
	case ObjectIdentifier:
		oid, oerr := parseOID(content)
		if oerr != nil {
			return nil, 0, fmt.Errorf("parseRawField(%s): %w", fieldName, oerr)
		}
		value = oid
	case Null:
		value = nil
	default:
		value = content
	}
	return value, length, nil
}

func parseInt(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 0
	negative := content[0]&0x80 != 0
	for _, b := range content {
		n = n<<8 | int(b)
	}
	if negative {
		n -= 1 << (8 * uint(len(content)))
	}
	return n
}

func parseUint32(content []byte) uint32 {
	var v uint32
	for _, b := range content {
		v = v<<8 | uint32(b)
	}
	return v
}
