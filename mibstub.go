// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"strings"
	"sync"
)

// MIBStub is a minimal, in-memory symbolic-name-to-OID table: this
// engine has no MIB compiler, but command generator callers and config
// files alike are more convenient to write against names than dotted OIDs.
// Host applications populate it themselves; nothing in this package
// consults it automatically.
type MIBStub struct {
	mu        sync.RWMutex
	nameToOID map[string]string
	oidToName map[string]string
}

// NewMIBStub returns an empty symbol table.
func NewMIBStub() *MIBStub {
	return &MIBStub{
		nameToOID: make(map[string]string),
		oidToName: make(map[string]string),
	}
}

// ImportSymbols registers a batch of MIB-module symbol-to-OID mappings,
// e.g. ImportSymbols(map[string]string{"sysDescr": ".1.3.6.1.2.1.1.1"}).
func (m *MIBStub) ImportSymbols(symbols map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, oid := range symbols {
		oid = normalizeOID(oid)
		m.nameToOID[name] = oid
		m.oidToName[oid] = name
	}
}

// MIBNameToOID resolves a bare symbol, or a "symbol.instance" suffix (e.g.
// "sysDescr.0"), to a dotted OID.
func (m *MIBStub) MIBNameToOID(name string) (string, error) {
	base, instance, hasInstance := strings.Cut(name, ".")
	m.mu.RLock()
	oid, ok := m.nameToOID[base]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("snmpengine: unknown MIB symbol %q", base)
	}
	if hasInstance {
		return oid + "." + instance, nil
	}
	return oid, nil
}

// OIDToMIBName resolves a dotted OID back to its registered symbol, if any,
// reporting the found base symbol and any trailing instance suffix.
func (m *MIBStub) OIDToMIBName(oid string) (name, instance string, ok bool) {
	oid = normalizeOID(oid)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(oid); i > 0; {
		candidate := oid[:i]
		if n, found := m.oidToName[candidate]; found {
			return n, strings.TrimPrefix(oid[i:], "."), true
		}
		last := strings.LastIndex(candidate, ".")
		if last <= 0 {
			break
		}
		i = last
	}
	return "", "", false
}

func normalizeOID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return strings.TrimSuffix(oid, ".")
}
