// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"sync"
)

// TargetParams names one (version, security) pairing: what to say,
// independent of where to say it.
type TargetParams struct {
	Name          string
	Version       SnmpVersion
	SecurityName  string
	SecurityLevel SecurityLevel

	mu              sync.Mutex
	cachedEngineID  string
	cachedBoots     uint32
	cachedTime      uint32
}

// TargetAddr names one transport binding: where to say it, plus which
// TargetParams to say it with.
type TargetAddr struct {
	Name             string
	TransportDomain  string
	TransportAddress string
	ParamsName       string
	TagList          string
}

// socketTransport is one configured outbound transport binding.
type socketTransport struct {
	Domain string
	Dispatcher TransportDispatcher
}

// Config is the configuration façade: a thin, mutable registry of named
// targets sitting in front of SnmpEngine/Dispatcher, in the shape of
// pysnmp cmdgen.py's cfgCmdGen/uncfgCmdGen helpers.
type Config struct {
	engine     *SnmpEngine
	dispatcher *Dispatcher

	mu            sync.Mutex
	v3UserTemplates map[string]*UsmSecurityParameters // keyed by securityName
	paramsByName  map[string]*TargetParams
	addrsByName   map[string]*TargetAddr
	addrsByTag    map[string][]*TargetAddr
	transports    map[string]*socketTransport // keyed by domain

	paramsCounter int
	addrCounter   int
}

// NewConfig builds an (initially empty) configuration façade bound to one
// engine/dispatcher pair.
func NewConfig(engine *SnmpEngine, dispatcher *Dispatcher) *Config {
	return &Config{
		engine:          engine,
		dispatcher:      dispatcher,
		v3UserTemplates: make(map[string]*UsmSecurityParameters),
		paramsByName:    make(map[string]*TargetParams),
		addrsByName:     make(map[string]*TargetAddr),
		addrsByTag:      make(map[string][]*TargetAddr),
		transports:      make(map[string]*socketTransport),
	}
}

// addV1System registers a v1/v2c community.
func (c *Config) addV1System(securityName, communityName, transportTag string) {
	c.engine.securityV1.addSystem(&v1System{
		SecurityName:  securityName,
		CommunityName: communityName,
		TransportTag:  transportTag,
	})
}

func (c *Config) delV1System(communityName string) {
	c.engine.securityV1.removeSystem(communityName)
}

// addV3User registers a USM user template. The user's authoritative
// engineID is not yet known at configuration time - it is resolved lazily
// by engine discovery the first time a target using this user is sent to,
// and cached per TargetParams thereafter.
func (c *Config) addV3User(securityName string, authProto AuthProtocol, authPassphrase string, privProto PrivProtocol, privPassphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v3UserTemplates[securityName] = &UsmSecurityParameters{
		UserName:                 securityName,
		AuthenticationProtocol:   authProto,
		AuthenticationPassphrase: authPassphrase,
		PrivacyProtocol:          privProto,
		PrivacyPassphrase:        privPassphrase,
	}
}

func (c *Config) delV3User(securityName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.v3UserTemplates, securityName)
}

// addTargetParams registers a named (version, security) pairing and returns
// its minted name if paramsName is empty.
func (c *Config) addTargetParams(paramsName string, version SnmpVersion, securityName string, securityLevel SecurityLevel) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if paramsName == "" {
		c.paramsCounter++
		paramsName = fmt.Sprintf("params-%d", c.paramsCounter)
	}
	c.paramsByName[paramsName] = &TargetParams{
		Name:          paramsName,
		Version:       version,
		SecurityName:  securityName,
		SecurityLevel: securityLevel,
	}
	return paramsName
}

func (c *Config) delTargetParams(paramsName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paramsByName, paramsName)
}

// addTargetAddr registers a named transport binding against a TargetParams.
func (c *Config) addTargetAddr(addrName, transportDomain, transportAddress, paramsName, tagList string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.paramsByName[paramsName]; !ok {
		return "", fmt.Errorf("snmpengine: addTargetAddr: unknown paramsName %q", paramsName)
	}
	if addrName == "" {
		c.addrCounter++
		addrName = fmt.Sprintf("addr-%d", c.addrCounter)
	}
	addr := &TargetAddr{
		Name:             addrName,
		TransportDomain:  transportDomain,
		TransportAddress: transportAddress,
		ParamsName:       paramsName,
		TagList:          tagList,
	}
	c.addrsByName[addrName] = addr
	c.addrsByTag[tagList] = append(c.addrsByTag[tagList], addr)
	return addrName, nil
}

func (c *Config) delTargetAddr(addrName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addrsByName[addrName]
	if !ok {
		return
	}
	delete(c.addrsByName, addrName)
	tagged := c.addrsByTag[addr.TagList]
	for i, a := range tagged {
		if a.Name == addrName {
			c.addrsByTag[addr.TagList] = append(tagged[:i], tagged[i+1:]...)
			break
		}
	}
}

// addSocketTransport registers a TransportDispatcher under a transport
// domain name and binds it to the engine.
func (c *Config) addSocketTransport(domain string, dispatcher TransportDispatcher) error {
	c.mu.Lock()
	c.transports[domain] = &socketTransport{Domain: domain, Dispatcher: dispatcher}
	c.mu.Unlock()
	return c.engine.registerTransportDispatcher(dispatcher)
}

func (c *Config) delSocketTransport(domain string) error {
	c.mu.Lock()
	st, ok := c.transports[domain]
	delete(c.transports, domain)
	c.mu.Unlock()
	c.engine.unregisterTransportDispatcher()
	if !ok {
		return nil
	}
	return st.Dispatcher.Close()
}

// Close tears down this configuration: the three caches that
// addV3User/addTargetParams/addTargetAddr populate (USM user templates,
// target params, target addresses) are flushed, and every registered
// transport is closed and unbound from the engine. A Config is not usable
// afterwards.
func (c *Config) Close() error {
	c.mu.Lock()
	c.v3UserTemplates = make(map[string]*UsmSecurityParameters)
	c.paramsByName = make(map[string]*TargetParams)
	c.addrsByName = make(map[string]*TargetAddr)
	c.addrsByTag = make(map[string][]*TargetAddr)
	transports := c.transports
	c.transports = make(map[string]*socketTransport)
	c.mu.Unlock()

	var firstErr error
	for _, st := range transports {
		if err := st.Dispatcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(transports) > 0 {
		c.engine.unregisterTransportDispatcher()
	}
	return firstErr
}

// resolvedTarget is everything a command generator call needs to build and
// send one outboundRequest.
type resolvedTarget struct {
	params *TargetParams
	addr   *TargetAddr
}

func (c *Config) resolveTarget(addrName string) (*resolvedTarget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addrsByName[addrName]
	if !ok {
		return nil, fmt.Errorf("snmpengine: unknown target address %q", addrName)
	}
	params, ok := c.paramsByName[addr.ParamsName]
	if !ok {
		return nil, fmt.Errorf("snmpengine: target %q references unknown params %q", addrName, addr.ParamsName)
	}
	return &resolvedTarget{params: params, addr: addr}, nil
}

// buildOutboundRequest assembles an outboundRequest for the named target,
// filling in USM security parameters (with any cached engineID) for v3 or a
// community string for v1/v2c.
func (c *Config) buildOutboundRequest(t *resolvedTarget, pdu *PDU, reportable bool) (*outboundRequest, error) {
	req := &outboundRequest{
		pdu:            pdu,
		securityName:   t.params.SecurityName,
		securityLevel:  t.params.SecurityLevel,
		maxMessageSize: c.engine.MaxMessageSize,
		reportable:     reportable,
	}

	switch t.params.Version {
	case Version1, Version2c:
		sys, ok := c.engine.securityV1.lookup(t.params.SecurityName)
		if !ok {
			// securityName doubles as community name for v1/v2c lookups
			// registered via addV1System; fall back to treating the name
			// itself as the community if no system was registered under
			// it.
			req.community = t.params.SecurityName
		} else {
			req.community = sys.CommunityName
		}
	case Version3:
		c.mu.Lock()
		tmpl, ok := c.v3UserTemplates[t.params.SecurityName]
		c.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("snmpengine: no v3 user registered for securityName %q", t.params.SecurityName)
		}
		sp := tmpl.Copy()
		sp.UserName = tmpl.UserName
		sp.AuthenticationProtocol = tmpl.AuthenticationProtocol
		sp.AuthenticationPassphrase = tmpl.AuthenticationPassphrase
		sp.PrivacyProtocol = tmpl.PrivacyProtocol
		sp.PrivacyPassphrase = tmpl.PrivacyPassphrase

		t.params.mu.Lock()
		sp.AuthoritativeEngineID = t.params.cachedEngineID
		sp.AuthoritativeEngineBoots = t.params.cachedBoots
		sp.AuthoritativeEngineTime = t.params.cachedTime
		t.params.mu.Unlock()

		req.usm = sp
	default:
		return nil, fmt.Errorf("snmpengine: unsupported version %v", t.params.Version)
	}

	return req, nil
}

// rememberEngineID caches a target's learned authoritative engineID/boots/
// time after a v3 exchange, whatever its outcome, so later calls skip
// re-discovery. An empty engineID (nothing learned) leaves the cache as is.
func (c *Config) rememberEngineID(params *TargetParams, engineID string, boots, engineTime uint32) {
	if engineID == "" {
		return
	}
	params.mu.Lock()
	defer params.mu.Unlock()
	params.cachedEngineID = engineID
	params.cachedBoots = boots
	params.cachedTime = engineTime
}
