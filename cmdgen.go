// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Get implements the GET command generator application: one GetRequest
// against the named target, synchronously.
func (c *Config) Get(addrName string, oids []string, timeout time.Duration, retries int) (*PDU, ErrorIndication, error) {
	vbs := make([]VarBind, len(oids))
	for i, oid := range oids {
		vbs[i] = VarBind{Name: oid, Type: Null}
	}
	pdu := &PDU{Type: GetRequest, VarBinds: vbs}
	return c.sendOne(addrName, pdu, timeout, retries)
}

// Set implements the SET command generator application: one SetRequest
// against the named target, synchronously.
func (c *Config) Set(addrName string, vbs []VarBind, timeout time.Duration, retries int) (*PDU, ErrorIndication, error) {
	pdu := &PDU{Type: SetRequest, VarBinds: vbs}
	return c.sendOne(addrName, pdu, timeout, retries)
}

func (c *Config) sendOne(addrName string, pdu *PDU, timeout time.Duration, retries int) (*PDU, ErrorIndication, error) {
	t, err := c.resolveTarget(addrName)
	if err != nil {
		return nil, ErrNone, err
	}
	req, err := c.buildOutboundRequest(t, pdu, true)
	if err != nil {
		return nil, ErrNone, err
	}

	respPDU, _, _, errInd, err := SyncRequest(c.engine, c.dispatcher, t.params.Version, req, t.addr.TransportDomain, t.addr.TransportAddress, timeout, retries)
	if req.usm != nil {
		c.rememberEngineID(t.params, req.usm.AuthoritativeEngineID, req.usm.AuthoritativeEngineBoots, req.usm.AuthoritativeEngineTime)
	}
	return respPDU, errInd, err
}

// Walk implements the GET-NEXT based table walk: repeatedly GetNext from
// rootOID until a returned varbind signals end-of-MIB (v2c/v3 exception
// values, or v1's noSuchName on the lexicographically-last object) or fails
// to advance lexicographically (a malformed or buggy agent otherwise
// looping forever). The continuation test itself has two modes: by
// default (lexicographicMode == false) a returned varbind must also stay
// under rootOID's subtree, so the walk stops cleanly at the edge of the
// requested subtree even against an agent that keeps emitting increasing
// OIDs past it; with lexicographicMode == true the subtree check is
// dropped and only strict lexicographic advance is required, letting the
// walk continue across subtree boundaries the way `snmpwalk`'s
// lexicographic mode does.
func (c *Config) Walk(addrName string, rootOID string, timeout time.Duration, retries int, lexicographicMode bool) ([]VarBind, error) {
	t, err := c.resolveTarget(addrName)
	if err != nil {
		return nil, err
	}

	var results []VarBind
	current := rootOID

	for {
		pdu := &PDU{Type: GetNextRequest, VarBinds: []VarBind{{Name: current, Type: Null}}}
		req, err := c.buildOutboundRequest(t, pdu, true)
		if err != nil {
			return results, err
		}

		respPDU, _, _, errInd, err := SyncRequest(c.engine, c.dispatcher, t.params.Version, req, t.addr.TransportDomain, t.addr.TransportAddress, timeout, retries)
		if req.usm != nil {
			c.rememberEngineID(t.params, req.usm.AuthoritativeEngineID, req.usm.AuthoritativeEngineBoots, req.usm.AuthoritativeEngineTime)
		}
		if err != nil {
			return results, err
		}
		if errInd != ErrNone {
			return results, fmt.Errorf("snmpengine: walk: %s", errInd)
		}
		if respPDU == nil || len(respPDU.VarBinds) == 0 {
			break
		}
		// v1 agents signal end-of-MIB with noSuchName instead of an
		// exception varbind type, RFC 1157 §4.1.3.
		if respPDU.ErrorStatus == NoSuchName {
			break
		}

		vb := respPDU.VarBinds[0]
		if vb.Type.isEndOfView() {
			break
		}
		if !lexicographicMode && !oidUnderPrefix(vb.Name, rootOID) {
			break
		}
		if !oidGreater(vb.Name, current) {
			break
		}

		results = append(results, vb)
		current = vb.Name
	}

	return results, nil
}

// BulkWalk implements the GET-BULK based multi-column table walk: a single
// walk drives one or more columns in lockstep, each column retiring
// independently (and the response rows shrinking accordingly -
// "non-rectangular" GET-BULK responses, RFC 3416 §4.2.3) once it leaves its
// subtree, hits an exception value, or stalls. As in Walk, lexicographicMode
// selects whether the per-column continuation test also requires staying
// under that column's rootOID (false, the default behaviour) or accepts any
// strictly-increasing OID (true). A GET-BULK response's final row is
// trimmed entirely, not partially applied, when it is shorter than the
// number of still-active columns: an agent that runs out of repetitions
// mid-row sends that last row as a signal to stop asking, not as data for
// whichever columns happened to still have room in it.
func (c *Config) BulkWalk(addrName string, rootOIDs []string, maxRepetitions uint8, timeout time.Duration, retries int, lexicographicMode bool) ([][]VarBind, error) {
	t, err := c.resolveTarget(addrName)
	if err != nil {
		return nil, err
	}

	heads := append([]string(nil), rootOIDs...)
	active := make([]bool, len(heads))
	for i := range active {
		active[i] = true
	}
	columns := make([][]VarBind, len(heads))

	for anyActive(active) {
		vbs := make([]VarBind, 0, len(heads))
		order := make([]int, 0, len(heads))
		for i, h := range heads {
			if active[i] {
				vbs = append(vbs, VarBind{Name: h, Type: Null})
				order = append(order, i)
			}
		}

		pdu := &PDU{Type: GetBulkRequest, NonRepeaters: 0, MaxRepetitions: maxRepetitions, VarBinds: vbs}
		req, err := c.buildOutboundRequest(t, pdu, true)
		if err != nil {
			return columns, err
		}

		respPDU, _, _, errInd, err := SyncRequest(c.engine, c.dispatcher, t.params.Version, req, t.addr.TransportDomain, t.addr.TransportAddress, timeout, retries)
		if req.usm != nil {
			c.rememberEngineID(t.params, req.usm.AuthoritativeEngineID, req.usm.AuthoritativeEngineBoots, req.usm.AuthoritativeEngineTime)
		}
		if err != nil {
			return columns, err
		}
		if errInd != ErrNone {
			return columns, fmt.Errorf("snmpengine: bulkwalk: %s", errInd)
		}
		if respPDU == nil || len(respPDU.VarBinds) == 0 {
			break
		}

		numCols := len(order)
		fullRows := len(respPDU.VarBinds) / numCols
		if trimmed := len(respPDU.VarBinds) % numCols; trimmed != 0 {
			c.engine.Log.Printf("snmpengine: bulkwalk: discarding non-rectangular trailing row (%d of %d columns)", trimmed, numCols)
		}

		progressed := false
		for row := 0; row < fullRows; row++ {
			advancedThisRow := false
			for col, i := range order {
				if !active[i] {
					continue
				}
				vb := respPDU.VarBinds[row*numCols+col]

				if vb.Type.isEndOfView() || (!lexicographicMode && !oidUnderPrefix(vb.Name, rootOIDs[i])) || !oidGreater(vb.Name, heads[i]) {
					active[i] = false
					continue
				}
				columns[i] = append(columns[i], vb)
				heads[i] = vb.Name
				advancedThisRow = true
				progressed = true
			}
			if !advancedThisRow {
				break
			}
		}

		if !progressed {
			break
		}
	}

	return columns, nil
}

func anyActive(active []bool) bool {
	for _, a := range active {
		if a {
			return true
		}
	}
	return false
}

// oidUnderPrefix reports whether oid equals prefix or lies beneath it,
// dotted-OID comparison.
func oidUnderPrefix(oid, prefix string) bool {
	oid = strings.TrimSuffix(oid, ".")
	prefix = strings.TrimSuffix(prefix, ".")
	return oid == prefix || strings.HasPrefix(oid, prefix+".")
}

// oidGreater reports whether a sorts strictly after b in lexicographic
// (arc-by-arc numeric) OID order, RFC 3416 §4.1's walk termination rule.
func oidGreater(a, b string) bool {
	as := splitOID(a)
	bs := splitOID(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] > bs[i]
		}
	}
	return len(as) > len(bs)
}

func splitOID(oid string) []int {
	oid = strings.TrimPrefix(oid, ".")
	parts := strings.Split(oid, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
