// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"encoding/binary"
	"fmt"
)

// This file implements DES-CBC, 3DES-EDE-CBC and AES-128/192/256-CFB
// privacy. The IV derivation is consistent across cipher families: AES
// packs engineBoots(4) || engineTime(4) || salt(8) into the IV regardless
// of key length (RFC 3826 §3.1.2.1), while DES/3DES XOR the last 8 bytes of
// the localised key with an 8-byte salt (RFC 3414 §8.1.1.2 / RFC 2574).

// aesKeyLen returns the AES key length in bytes for a privacy protocol, or 0
// if it is not an AES variant.
func aesKeyLen(proto PrivProtocol) int {
	switch proto {
	case AES128:
		return 16
	case AES192:
		return 24
	case AES256:
		return 32
	default:
		return 0
	}
}

// requiredKeyMaterial returns how many bytes of localised key material a
// privacy protocol consumes (cipher key, plus an 8-byte DES/3DES pre-IV).
func requiredKeyMaterial(proto PrivProtocol) int {
	switch proto {
	case DES:
		return 8 + 8
	case TripleDES:
		return 24 + 8
	default:
		return aesKeyLen(proto)
	}
}

// extendKey implements the de-facto "Reeder" USM key extension algorithm
// (used by net-snmp and pysnmp) for privacy protocols whose key material
// exceeds one hash's output: repeatedly hash the material-so-far and
// append, until there is enough, then truncate. A localised MD5/SHA-1 key
// is 16/20 bytes, too short for 3DES (32 bytes) or AES-256 (32 bytes).
func extendKey(proto AuthProtocol, key []byte, need int) []byte {
	if len(key) >= need {
		return key[:need]
	}
	extended := append([]byte(nil), key...)
	for len(extended) < need {
		extended = append(extended, localiseHashOnly(proto, extended)...)
	}
	return extended[:need]
}

func encryptScopedPDU(proto PrivProtocol, privKey []byte, engineBoots, engineTime uint32, salt, plaintext []byte) ([]byte, error) {
	switch proto {
	case AES128, AES192, AES256:
		return aesCFBCrypt(proto, privKey, engineBoots, engineTime, salt, plaintext, true)
	case TripleDES:
		return desCBCCrypt(privKey[:24], privKey[24:32], salt, plaintext, true)
	case DES:
		return desCBCCrypt(privKey[:8], privKey[8:16], salt, plaintext, true)
	default:
		return nil, fmt.Errorf("usm: unsupported privacy protocol %v", proto)
	}
}

func decryptScopedPDU(proto PrivProtocol, privKey []byte, engineBoots, engineTime uint32, salt, ciphertext []byte) ([]byte, error) {
	switch proto {
	case AES128, AES192, AES256:
		return aesCFBCrypt(proto, privKey, engineBoots, engineTime, salt, ciphertext, false)
	case TripleDES:
		return desCBCCrypt(privKey[:24], privKey[24:32], salt, ciphertext, false)
	case DES:
		return desCBCCrypt(privKey[:8], privKey[8:16], salt, ciphertext, false)
	default:
		return nil, fmt.Errorf("usm: unsupported privacy protocol %v", proto)
	}
}

// aesCFBCrypt implements RFC 3826: the 128-bit IV is
// engineBoots(4)||engineTime(4)||salt(8); encryption and decryption are
// symmetric CFB operations so one helper drives both directions.
func aesCFBCrypt(proto PrivProtocol, privKey []byte, engineBoots, engineTime uint32, salt, data []byte, encrypt bool) ([]byte, error) {
	keyLen := aesKeyLen(proto)
	if len(privKey) < keyLen {
		return nil, fmt.Errorf("usm: localised AES key too short for %v", proto)
	}
	var iv [16]byte
	binary.BigEndian.PutUint32(iv[0:], engineBoots)
	binary.BigEndian.PutUint32(iv[4:], engineTime)
	copy(iv[8:], salt)

	block, err := aes.NewCipher(privKey[:keyLen])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCFBEncrypter(block, iv[:]).XORKeyStream(out, data)
	} else {
		cipher.NewCFBDecrypter(block, iv[:]).XORKeyStream(out, data)
	}
	return out, nil
}

// desCBCCrypt implements RFC 3414 §8.1.1 for DES (key[:8]) and, with a
// 24-byte key, the 3DES-EDE variant from RFC 2574's "Reeder" draft as
// carried forward by common USM implementations: same salt/IV scheme, CBC
// mode over a triple-DES block cipher instead of single DES.
func desCBCCrypt(cryptKey, preIV, salt, data []byte, encrypt bool) ([]byte, error) {
	if len(salt) != 8 {
		return nil, fmt.Errorf("usm: salt must be 8 bytes, got %d", len(salt))
	}
	var iv [8]byte
	for i := range iv {
		iv[i] = preIV[i] ^ salt[i]
	}

	var block cipher.Block
	var err error
	switch len(cryptKey) {
	case 8:
		block, err = des.NewCipher(cryptKey)
	case 24:
		block, err = des.NewTripleDESCipher(cryptKey)
	default:
		return nil, fmt.Errorf("usm: DES/3DES key must be 8 or 24 bytes, got %d", len(cryptKey))
	}
	if err != nil {
		return nil, err
	}

	if encrypt {
		padded := data
		if rem := len(padded) % des.BlockSize; rem != 0 {
			padded = append(append([]byte(nil), data...), make([]byte, des.BlockSize-rem)...)
		}
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
		return out, nil
	}

	if len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("usm: ciphertext not a multiple of the DES block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, data)
	return out, nil
}
