// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package snmpengine implements the manager side of the SNMPv1, SNMPv2c and
// SNMPv3 message framework (RFC 3411-3417, 2576): a Message & PDU Dispatcher,
// the three Message Processing Models, the User-Based Security Model, and
// the GET/GET-NEXT/GET-BULK/SET command generator applications including
// table walking.
//
// The engine is transport-agnostic manager code only; it has no MIB
// compiler, no agent-side command responder, and no access control beyond a
// stub. See SnmpEngine for the stateful root object.
package snmpengine
