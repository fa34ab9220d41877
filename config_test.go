// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConfigBare(t *testing.T) *Config {
	t.Helper()
	engine, err := NewSnmpEngine(WithBootCounterFile(t.TempDir() + "/boots"))
	require.NoError(t, err)
	// NewDispatcher needs a transport already bound to the engine.
	require.NoError(t, engine.registerTransportDispatcher(&fakeClosableTransport{}))
	d, err := NewDispatcher(engine)
	require.NoError(t, err)
	return NewConfig(engine, d)
}

func TestAddTargetParamsMintsNameWhenEmpty(t *testing.T) {
	cfg := newTestConfigBare(t)

	name1 := cfg.addTargetParams("", Version2c, "public", NoAuthNoPriv)
	name2 := cfg.addTargetParams("", Version2c, "public", NoAuthNoPriv)
	require.NotEqual(t, name1, name2)
	require.Equal(t, "params-1", name1)
	require.Equal(t, "params-2", name2)

	named := cfg.addTargetParams("myParams", Version3, "alice", AuthPriv)
	require.Equal(t, "myParams", named)
}

func TestAddTargetAddrMintsNameAndRejectsUnknownParams(t *testing.T) {
	cfg := newTestConfigBare(t)
	paramsName := cfg.addTargetParams("", Version2c, "public", NoAuthNoPriv)

	addrName, err := cfg.addTargetAddr("", "udp", "10.0.0.1:161", paramsName, "")
	require.NoError(t, err)
	require.Equal(t, "addr-1", addrName)

	_, err = cfg.addTargetAddr("bad", "udp", "10.0.0.1:161", "does-not-exist", "")
	require.Error(t, err)
}

func TestResolveTargetRejectsUnknownAddr(t *testing.T) {
	cfg := newTestConfigBare(t)
	_, err := cfg.resolveTarget("nope")
	require.Error(t, err)
}

func TestBuildOutboundRequestV1UsesCommunity(t *testing.T) {
	cfg := newTestConfigBare(t)
	cfg.addV1System("public", "public", "")
	paramsName := cfg.addTargetParams("", Version2c, "public", NoAuthNoPriv)
	addrName, err := cfg.addTargetAddr("", "udp", "10.0.0.1:161", paramsName, "")
	require.NoError(t, err)

	target, err := cfg.resolveTarget(addrName)
	require.NoError(t, err)

	req, err := cfg.buildOutboundRequest(target, &PDU{Type: GetRequest}, true)
	require.NoError(t, err)
	require.Equal(t, "public", req.community)
	require.Nil(t, req.usm)
}

func TestBuildOutboundRequestV3UsesCachedEngineID(t *testing.T) {
	cfg := newTestConfigBare(t)
	cfg.addV3User("bob", SHA, "authpassphrase", AES128, "privpassphrase")
	paramsName := cfg.addTargetParams("", Version3, "bob", AuthPriv)
	addrName, err := cfg.addTargetAddr("", "udp", "10.0.0.1:161", paramsName, "")
	require.NoError(t, err)

	target, err := cfg.resolveTarget(addrName)
	require.NoError(t, err)
	cfg.rememberEngineID(target.params, "\x80\x00\x1f\x88\x80somediscoveredengine", 2, 99)

	// resolveTarget returns the same *TargetParams each time, so the cache
	// populated above is visible to a freshly resolved target too.
	target2, err := cfg.resolveTarget(addrName)
	require.NoError(t, err)

	req, err := cfg.buildOutboundRequest(target2, &PDU{Type: GetRequest}, true)
	require.NoError(t, err)
	require.NotNil(t, req.usm)
	require.Equal(t, "\x80\x00\x1f\x88\x80somediscoveredengine", req.usm.AuthoritativeEngineID)
	require.Equal(t, uint32(2), req.usm.AuthoritativeEngineBoots)
	require.Equal(t, uint32(99), req.usm.AuthoritativeEngineTime)
}

func TestBuildOutboundRequestV3RejectsUnknownUser(t *testing.T) {
	cfg := newTestConfigBare(t)
	paramsName := cfg.addTargetParams("", Version3, "nobody", AuthPriv)
	addrName, err := cfg.addTargetAddr("", "udp", "10.0.0.1:161", paramsName, "")
	require.NoError(t, err)

	target, err := cfg.resolveTarget(addrName)
	require.NoError(t, err)

	_, err = cfg.buildOutboundRequest(target, &PDU{Type: GetRequest}, true)
	require.Error(t, err)
}

// fakeClosableTransport is a minimal TransportDispatcher double whose only
// interesting behaviour is recording whether Close was called.
type fakeClosableTransport struct {
	closed bool
}

func (f *fakeClosableTransport) RegisterRecvCallback(fn RecvCallback)                   {}
func (f *fakeClosableTransport) UnregisterRecvCallback()                                {}
func (f *fakeClosableTransport) RegisterTimerCallback(d time.Duration, fn TimerCallback) {}
func (f *fakeClosableTransport) UnregisterTimerCallback()                               {}
func (f *fakeClosableTransport) SendMessage(wholeMsg []byte, domain, addr string) error  { return nil }
func (f *fakeClosableTransport) RunDispatcher(stop <-chan struct{}) error               { <-stop; return nil }
func (f *fakeClosableTransport) Close() error                                           { f.closed = true; return nil }

func TestConfigCloseFlushesCachesAndClosesTransport(t *testing.T) {
	engine, err := NewSnmpEngine(WithBootCounterFile(t.TempDir() + "/boots"))
	require.NoError(t, err)
	cfg := NewConfig(engine, nil)

	transport := &fakeClosableTransport{}
	require.NoError(t, cfg.addSocketTransport("udp", transport))

	// NewDispatcher needs the transport already bound to the engine.
	d, err := NewDispatcher(engine)
	require.NoError(t, err)
	cfg.dispatcher = d

	cfg.addV3User("bob", SHA, "authpassphrase", AES128, "privpassphrase")
	paramsName := cfg.addTargetParams("", Version3, "bob", AuthPriv)
	addrName, err := cfg.addTargetAddr("", "udp", "10.0.0.1:161", paramsName, "")
	require.NoError(t, err)

	require.NoError(t, cfg.Close())

	require.True(t, transport.closed)
	_, err = cfg.resolveTarget(addrName)
	require.Error(t, err)

	_, err = cfg.addTargetAddr("new", "udp", "10.0.0.2:161", paramsName, "")
	require.Error(t, err, "paramsByName must be flushed too, so a stale paramsName no longer resolves")
}

func TestDelTargetAddrRemovesFromTagIndex(t *testing.T) {
	cfg := newTestConfigBare(t)
	paramsName := cfg.addTargetParams("", Version2c, "public", NoAuthNoPriv)
	addrName, err := cfg.addTargetAddr("tagged1", "udp", "10.0.0.1:161", paramsName, "group1")
	require.NoError(t, err)
	require.Len(t, cfg.addrsByTag["group1"], 1)

	cfg.delTargetAddr(addrName)
	_, err = cfg.resolveTarget(addrName)
	require.Error(t, err)
	require.Empty(t, cfg.addrsByTag["group1"])
}
