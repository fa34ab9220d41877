// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"crypto/hmac"
	"crypto/md5"
	crand "crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"sync"
	"sync/atomic"
	"time"
)

// AuthProtocol is the HMAC construction used to authenticate a v3 message,
// RFC 3414 §6 / RFC 3826.
type AuthProtocol uint8

const (
	NoAuth AuthProtocol = iota
	MD5
	SHA
)

// PrivProtocol is the symmetric cipher used to encrypt a v3 scopedPDU,
// RFC 3414 §8 / RFC 3826.
type PrivProtocol uint8

const (
	NoPriv PrivProtocol = iota
	DES
	AES128
	AES192
	AES256
	TripleDES
)

// UsmSecurityParameters is the msgSecurityParameters content for the
// User-Based Security Model (RFC 3414 §2.4), plus the plaintext
// pass-phrases and localisation state needed to generate and process
// messages for one user against one authoritative engine.
type UsmSecurityParameters struct {
	AuthoritativeEngineID    string
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32
	UserName                 string
	AuthenticationParameters string
	PrivacyParameters        []byte

	AuthenticationProtocol AuthProtocol
	PrivacyProtocol        PrivProtocol

	AuthenticationPassphrase string
	PrivacyPassphrase        string

	localDESSalt uint32
	localAESSalt uint64
}

// Copy returns a deep-enough copy of sp so that a dispatcher cache entry
// and a live connection's security parameters never alias each other's
// mutable salt counters.
func (sp *UsmSecurityParameters) Copy() *UsmSecurityParameters {
	cp := *sp
	cp.PrivacyParameters = append([]byte(nil), sp.PrivacyParameters...)
	return &cp
}

func (sp *UsmSecurityParameters) validate(level SecurityLevel) error {
	switch level {
	case AuthPriv:
		if sp.PrivacyProtocol == NoPriv {
			return fmt.Errorf("usm: PrivacyProtocol is required for authPriv")
		}
		if sp.PrivacyPassphrase == "" {
			return fmt.Errorf("usm: PrivacyPassphrase is required for authPriv")
		}
		fallthrough
	case AuthNoPriv:
		if sp.AuthenticationProtocol == NoAuth {
			return fmt.Errorf("usm: AuthenticationProtocol is required for %s", level)
		}
		if sp.AuthenticationPassphrase == "" {
			return fmt.Errorf("usm: AuthenticationPassphrase is required for %s", level)
		}
		fallthrough
	case NoAuthNoPriv:
		if sp.UserName == "" {
			return fmt.Errorf("usm: UserName is required")
		}
	default:
		return fmt.Errorf("usm: unknown security level %v", level)
	}
	return nil
}

// initSalt seeds the per-connection salt counters from a cryptographically
// secure source. localDESSalt/localAESSalt are then incremented on every
// outgoing authPriv message (RFC 2574 §8.1.1.1 - "needs to be incremented
// on every packet").
func (sp *UsmSecurityParameters) initSalt() error {
	switch sp.PrivacyProtocol {
	case AES128, AES192, AES256:
		salt := make([]byte, 8)
		if _, err := crand.Read(salt); err != nil {
			return fmt.Errorf("usm: creating AES salt: %w", err)
		}
		sp.localAESSalt = binary.BigEndian.Uint64(salt)
	case DES, TripleDES:
		salt := make([]byte, 4)
		if _, err := crand.Read(salt); err != nil {
			return fmt.Errorf("usm: creating DES salt: %w", err)
		}
		sp.localDESSalt = binary.BigEndian.Uint32(salt)
	}
	return nil
}

func (sp *UsmSecurityParameters) allocateSalt() []byte {
	switch sp.PrivacyProtocol {
	case AES128, AES192, AES256:
		v := atomic.AddUint64(&sp.localAESSalt, 1)
		salt := make([]byte, 8)
		binary.BigEndian.PutUint64(salt, v)
		return salt
	default:
		v := atomic.AddUint32(&sp.localDESSalt, 1)
		salt := make([]byte, 8)
		binary.BigEndian.PutUint32(salt, sp.AuthoritativeEngineBoots)
		binary.BigEndian.PutUint32(salt[4:], v)
		return salt
	}
}

// localiseKey implements RFC 3414 §2.6: Kul = H(H(password expanded to 1MB)
// || engineID || H(password expanded to 1MB)).
func localiseKey(proto AuthProtocol, passphrase, engineID string) []byte {
	switch proto {
	case SHA:
		return localise(sha1.New(), passphrase, engineID)
	default:
		return localise(md5.New(), passphrase, engineID)
	}
}

// localiseHashOnly hashes raw bytes with the given protocol's digest,
// without the RFC 3414 password-expansion step. Used only by extendKey
// (usm_crypto.go) to lengthen a localised key for 3DES/AES-256.
func localiseHashOnly(proto AuthProtocol, data []byte) []byte {
	var h hash.Hash
	switch proto {
	case SHA:
		h = sha1.New()
	default:
		h = md5.New()
	}
	h.Write(data)
	return h.Sum(nil)
}

func localise(h hash.Hash, passphrase, engineID string) []byte {
	h.Reset()
	if len(passphrase) > 0 {
		var pi int
		for i := 0; i < 1048576; i += 64 {
			chunk := make([]byte, 64)
			for e := 0; e < 64; e++ {
				chunk[e] = passphrase[pi%len(passphrase)]
				pi++
			}
			h.Write(chunk)
		}
	}
	expanded := h.Sum(nil)

	h.Reset()
	h.Write(expanded)
	h.Write([]byte(engineID))
	h.Write(expanded)
	return h.Sum(nil)
}

// hmac96 computes the RFC 3414 §6.3.1 truncated-to-96-bit keyed hash used
// to authenticate a serialized message.
func hmac96(proto AuthProtocol, key, msg []byte) []byte {
	var h hash.Hash
	switch proto {
	case SHA:
		h = hmac.New(sha1.New, key)
	default:
		h = hmac.New(md5.New, key)
	}
	h.Write(msg)
	return h.Sum(nil)[:12]
}

// timeWindowEntry is this engine's cached notion of a remote authoritative
// engine's (boots, time), refreshed whenever we receive an authenticated
// message from it (we are always the non-authoritative side as a manager).
type timeWindowEntry struct {
	boots      uint32
	time       uint32
	lastLocal  time.Time
}

// usmSecurityModel implements the Security Model contract for USM: request
// generation (authenticate/encrypt) and incoming processing (verify/
// decrypt/time-window), RFC 3414 §3.1-3.2.
type usmSecurityModel struct {
	mu         sync.Mutex
	users      map[string]*UsmSecurityParameters // keyed by engineID|userName
	timeCache  map[string]*timeWindowEntry        // keyed by engineID
	localTime  time.Time                          // this engine's own boot time, for our own snmpEngineTime
}

func newUSMSecurityModel() *usmSecurityModel {
	return &usmSecurityModel{
		users:     make(map[string]*UsmSecurityParameters),
		timeCache: make(map[string]*timeWindowEntry),
		localTime: time.Now(),
	}
}

func usmUserKey(engineID, userName string) string {
	return engineID + "|" + userName
}

// addUser registers a USM user's localised keys for a given authoritative
// engineID. Passphrases are localised immediately (I3: privacy implies
// authentication, enforced by validate at configuration time by config.go).
func (m *usmSecurityModel) addUser(engineID string, sp *UsmSecurityParameters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[usmUserKey(engineID, sp.UserName)] = sp
}

func (m *usmSecurityModel) removeUser(engineID, userName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, usmUserKey(engineID, userName))
}

func (m *usmSecurityModel) lookupUser(engineID, userName string) (*UsmSecurityParameters, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.users[usmUserKey(engineID, userName)]
	return sp, ok
}

func (m *usmSecurityModel) cachedTime(engineID string) (*timeWindowEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timeCache[engineID]
	return e, ok
}

// updateTime records the remote engine's authoritative (boots, time) and
// the local instant it was observed, so engineTime can be extrapolated
// between messages (RFC 3414 §2.2.3: "snmpEngineTime ... increases at the
// same rate as real time").
func (m *usmSecurityModel) updateTime(engineID string, boots, t uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeCache[engineID] = &timeWindowEntry{boots: boots, time: t, lastLocal: time.Now()}
}

// currentTime extrapolates the remote engine's current (boots, time) from
// the last-observed sample plus elapsed wall-clock time.
func (m *usmSecurityModel) currentTime(engineID string) (boots, t uint32) {
	e, ok := m.cachedTime(engineID)
	if !ok {
		return 0, 0
	}
	elapsed := uint32(time.Since(e.lastLocal).Seconds())
	return e.boots, e.time + elapsed
}

// generateRequestMessage authenticates and, if required, encrypts an
// outgoing v3 message in place: encrypt the scoped PDU first, marshal the
// whole message, then HMAC the result and patch the digest into the
// reserved authentication-parameters field.
func (m *usmSecurityModel) generateRequestMessage(msg *messageV3) error {
	sp := msg.secParams
	if err := sp.validate(msg.MsgFlags.level()); err != nil {
		return err
	}

	if msg.MsgFlags&flagPriv != 0 {
		salt := sp.allocateSalt()
		sp.PrivacyParameters = salt
		privKey := extendKey(sp.AuthenticationProtocol, localiseKey(sp.AuthenticationProtocol, sp.PrivacyPassphrase, sp.AuthoritativeEngineID), requiredKeyMaterial(sp.PrivacyProtocol))
		cipherText, err := encryptScopedPDU(sp.PrivacyProtocol, privKey, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, salt, msg.plaintextScopedPDU)
		if err != nil {
			return err
		}
		msg.encryptedScopedPDU = cipherText
	}

	wire, authParamStart, err := marshalMessageV3(msg)
	if err != nil {
		return err
	}

	if msg.MsgFlags&flagAuth != 0 {
		authKey := localiseKey(sp.AuthenticationProtocol, sp.AuthenticationPassphrase, sp.AuthoritativeEngineID)
		mac := hmac96(sp.AuthenticationProtocol, authKey, wire)
		copy(wire[authParamStart:authParamStart+12], mac)
	}

	msg.wire = wire
	return nil
}

// processIncomingMessage verifies and, if required, decrypts an inbound v3
// message. errInd is one of the ErrorIndication tokens the USM can generate
// on the authoritative side, or ErrNone on success.
func (m *usmSecurityModel) processIncomingMessage(msg *messageV3, raw []byte, authParamStart uint32) (errInd ErrorIndication, err error) {
	sp := msg.secParams

	// RFC 3414 §3.2 step 2: privFlag set without authFlag is an invalid
	// combination, never one this security model can service.
	if msg.MsgFlags&flagPriv != 0 && msg.MsgFlags&flagAuth == 0 {
		return ErrUnsupportedSecLevel, fmt.Errorf("usm: privFlag set without authFlag")
	}

	if msg.MsgFlags&flagAuth != 0 {
		local, ok := m.lookupUser(sp.AuthoritativeEngineID, sp.UserName)
		if !ok {
			return ErrUnknownUserName, fmt.Errorf("usm: unknown user %q for engine %x", sp.UserName, sp.AuthoritativeEngineID)
		}
		received := []byte(sp.AuthenticationParameters)
		zeroed := append([]byte(nil), raw...)
		for i := 0; i < 12 && int(authParamStart)+i < len(zeroed); i++ {
			zeroed[int(authParamStart)+i] = 0
		}
		authKey := localiseKey(local.AuthenticationProtocol, local.AuthenticationPassphrase, sp.AuthoritativeEngineID)
		expected := hmac96(local.AuthenticationProtocol, authKey, zeroed)
		if !constantTimeEqual(expected, received) {
			return ErrWrongDigest, fmt.Errorf("usm: authentication failed for user %q", sp.UserName)
		}

		// Time-window check, RFC 3414 §3.2.7. As the
		// non-authoritative (manager) side, we trust the remote's boots/time
		// and refresh our cache from it. Once we already hold a sample, a
		// lower engineBoots is rejected, and with equal engineBoots an
		// engineTime more than 150 seconds away from our extrapolated value
		// (in either direction) is rejected as notInTimeWindow after the
		// cache has been refreshed from it, so the next message is judged
		// against the new value.
		if cached, ok := m.cachedTime(sp.AuthoritativeEngineID); ok {
			if sp.AuthoritativeEngineBoots < cached.boots {
				return ErrNotInTimeWindow, fmt.Errorf("usm: engineBoots regressed")
			}
			if sp.AuthoritativeEngineBoots == cached.boots {
				localNow := cached.time + uint32(time.Since(cached.lastLocal).Seconds())
				delta := int64(sp.AuthoritativeEngineTime) - int64(localNow)
				if delta > timeWindowSeconds || delta < -timeWindowSeconds {
					m.updateTime(sp.AuthoritativeEngineID, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime)
					return ErrNotInTimeWindow, fmt.Errorf("usm: time window exceeded")
				}
			}
		}
		m.updateTime(sp.AuthoritativeEngineID, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime)

		if msg.MsgFlags&flagPriv != 0 {
			privKey := extendKey(local.AuthenticationProtocol, localiseKey(local.AuthenticationProtocol, local.PrivacyPassphrase, sp.AuthoritativeEngineID), requiredKeyMaterial(local.PrivacyProtocol))
			plain, err := decryptScopedPDU(local.PrivacyProtocol, privKey, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, sp.PrivacyParameters, msg.encryptedScopedPDU)
			if err != nil {
				return ErrDecryptionError, err
			}
			msg.plaintextScopedPDU = plain
		}
	}

	return ErrNone, nil
}

// timeWindowSeconds is the RFC 3414 §3.2.7 lateral replay window.
const timeWindowSeconds = 150

// constantTimeEqual compares two byte slices without leaking which byte
// differed through early return timing.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
