// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"sync"
)

// v1System is one configured community/target pairing for the community
// Security Model.
type v1System struct {
	SecurityName string
	CommunityName string
	TransportTag string
}

// communitySecurityModel implements the v1/v2c Security Model: the
// community string carried on the wire IS the authentication, RFC 2576 §5.
// There is no localisation, no crypto, and no time-window - just a lookup.
type communitySecurityModel struct {
	mu         sync.Mutex
	byCommunity map[string]*v1System
}

func newCommunitySecurityModel() *communitySecurityModel {
	return &communitySecurityModel{byCommunity: make(map[string]*v1System)}
}

func (m *communitySecurityModel) addSystem(sys *v1System) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byCommunity[sys.CommunityName] = sys
}

func (m *communitySecurityModel) removeSystem(communityName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byCommunity, communityName)
}

func (m *communitySecurityModel) lookup(communityName string) (*v1System, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sys, ok := m.byCommunity[communityName]
	return sys, ok
}

// verifyCommunity checks an inbound message's community string against the
// configured v1 systems. There is exactly one failure mode: an unrecognised
// community is treated the same as the agent-side "noSuchName"-for-community
// behaviour pysnmp's cmdgen exposes - a local error, not a PDU-level one,
// since a manager only ever receives a response echoing its own outbound
// community.
func (m *communitySecurityModel) verifyCommunity(community string) error {
	if _, ok := m.lookup(community); !ok {
		return fmt.Errorf("snmpengine: unrecognised community %q", community)
	}
	return nil
}
