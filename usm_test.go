// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocaliseKeyDeterministic checks that localising the same (protocol,
// passphrase, engineID) twice yields byte-identical keys, and that calling
// it twice in a row (idempotence of the pure function, not of any stateful
// counter) never mutates shared state.
func TestLocaliseKeyDeterministic(t *testing.T) {
	for _, proto := range []AuthProtocol{MD5, SHA} {
		k1 := localiseKey(proto, "maplesyrup", "\x80\x00\x1f\x88\x80E\x9d\xf1bc")
		k2 := localiseKey(proto, "maplesyrup", "\x80\x00\x1f\x88\x80E\x9d\xf1bc")
		assert.Equal(t, k1, k2, "localiseKey must be deterministic for %v", proto)
	}
}

func TestLocaliseKeyLength(t *testing.T) {
	md5Key := localiseKey(MD5, "maplesyrup", "engine")
	assert.Len(t, md5Key, 16)

	shaKey := localiseKey(SHA, "maplesyrup", "engine")
	assert.Len(t, shaKey, 20)
}

func TestLocaliseKeyDiffersByEngineID(t *testing.T) {
	a := localiseKey(MD5, "maplesyrup", "engineA")
	b := localiseKey(MD5, "maplesyrup", "engineB")
	assert.NotEqual(t, a, b)
}

// TestExtendKeyCoversAllPrivacyProtocols checks that every supported
// privacy protocol gets enough key material out of extendKey, and that
// extending an already-long-enough key is a no-op truncation.
func TestExtendKeyCoversAllPrivacyProtocols(t *testing.T) {
	base := localiseKey(MD5, "maplesyrup", "engine")
	for _, proto := range []PrivProtocol{DES, TripleDES, AES128, AES192, AES256} {
		need := requiredKeyMaterial(proto)
		extended := extendKey(MD5, base, need)
		assert.Len(t, extended, need, "extendKey(%v) length", proto)
	}
}

func TestExtendKeyDeterministic(t *testing.T) {
	base := localiseKey(SHA, "maplesyrup", "engine")
	a := extendKey(SHA, base, requiredKeyMaterial(TripleDES))
	b := extendKey(SHA, base, requiredKeyMaterial(TripleDES))
	assert.Equal(t, a, b)
}

// TestCryptoRoundTrip checks that encrypt then decrypt recovers the
// original scopedPDU bytes for every privacy protocol.
func TestCryptoRoundTrip(t *testing.T) {
	plaintext := []byte("this is a scopedPDU payload that is not block aligned!!")

	cases := []struct {
		name  string
		proto PrivProtocol
	}{
		{"DES", DES},
		{"TripleDES", TripleDES},
		{"AES128", AES128},
		{"AES192", AES192},
		{"AES256", AES256},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key := extendKey(SHA, localiseKey(SHA, "maplesyrup", "engine"), requiredKeyMaterial(tc.proto))
			salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}

			ciphertext, err := encryptScopedPDU(tc.proto, key, 1, 100, salt, plaintext)
			require.NoError(t, err)

			decrypted, err := decryptScopedPDU(tc.proto, key, 1, 100, salt, ciphertext)
			require.NoError(t, err)

			if tc.proto == DES || tc.proto == TripleDES {
				// CBC with zero padding to block size: compare the
				// plaintext-length prefix only.
				assert.Equal(t, plaintext, decrypted[:len(plaintext)])
			} else {
				assert.Equal(t, plaintext, decrypted)
			}
		})
	}
}

// TestConstantTimeEqual checks that the comparison is correct (constant-
// time behaviour itself isn't observable from a unit test, but
// wrong-length and differing-content inputs must both report unequal).
func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 3}))
	assert.False(t, constantTimeEqual([]byte{1, 2, 3}, []byte{1, 2, 4}))
	assert.False(t, constantTimeEqual([]byte{1, 2, 3}, []byte{1, 2}))
	assert.True(t, constantTimeEqual(nil, nil))
}

func TestHMAC96Length(t *testing.T) {
	mac := hmac96(MD5, []byte("0123456789012345"), []byte("hello world"))
	assert.Len(t, mac, 12)

	mac = hmac96(SHA, []byte("01234567890123456789"), []byte("hello world"))
	assert.Len(t, mac, 12)
}

// TestUsmGenerateAndProcessRoundTrip checks that a message generated for
// one user, with a known AuthoritativeEngineID, is accepted by
// processIncomingMessage for the same user/engine and rejected once the
// wire bytes are tampered with (authentication failure).
func TestUsmGenerateAndProcessRoundTrip(t *testing.T) {
	m := newUSMSecurityModel()
	engineID := "\x80\x00\x1f\x88\x80authdiscoveredengine"

	sp := &UsmSecurityParameters{
		AuthoritativeEngineID:    engineID,
		AuthoritativeEngineBoots: 1,
		AuthoritativeEngineTime:  1000,
		UserName:                 "alice",
		AuthenticationProtocol:   SHA,
		AuthenticationPassphrase: "authpassphrase",
		PrivacyProtocol:          AES128,
		PrivacyPassphrase:        "privpassphrase",
	}
	require.NoError(t, sp.initSalt())
	m.addUser(engineID, sp)

	msg := &messageV3{
		MsgID:           7,
		MsgMaxSize:      65507,
		MsgFlags:        msgFlagsFor(AuthPriv, true),
		SecurityModel:   SecurityModelUSM,
		secParams:       sp.Copy(),
		contextEngineID: engineID,
		contextName:     "",
		pdu:             &PDU{Type: GetRequest, RequestID: 1, VarBinds: []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: Null}}},
	}
	scopedPDU, err := marshalScopedPDU(msg.contextEngineID, msg.contextName, msg.pdu)
	require.NoError(t, err)
	msg.plaintextScopedPDU = scopedPDU

	require.NoError(t, m.generateRequestMessage(msg))

	parsed, authParamStart, raw, err := unmarshalMessageV3(msg.wire)
	require.NoError(t, err)
	require.Equal(t, raw, msg.wire)

	errInd, err := m.processIncomingMessage(parsed, raw, authParamStart)
	require.NoError(t, err)
	assert.Equal(t, ErrNone, errInd)

	contextEngineID, contextName, pduBytes, err := parseScopedPDU(parsed.plaintextScopedPDU)
	require.NoError(t, err)
	assert.Equal(t, engineID, contextEngineID)
	assert.Equal(t, "", contextName)

	decodedPDU, _, err := unmarshalPDU(pduBytes, 0)
	require.NoError(t, err)
	assert.Equal(t, msg.pdu.RequestID, decodedPDU.RequestID)
	assert.Equal(t, msg.pdu.VarBinds[0].Name, decodedPDU.VarBinds[0].Name)

	// Tamper with the wire bytes after the header: authentication must fail.
	tampered := append([]byte(nil), msg.wire...)
	tampered[len(tampered)-1] ^= 0xFF
	parsedTampered, authStartTampered, rawTampered, err := unmarshalMessageV3(tampered)
	require.NoError(t, err)
	errInd, err = m.processIncomingMessage(parsedTampered, rawTampered, authStartTampered)
	assert.Error(t, err)
	assert.Equal(t, ErrWrongDigest, errInd)
}
