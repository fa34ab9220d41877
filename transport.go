// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "time"

// RecvCallback is invoked by a TransportDispatcher for every inbound
// datagram.
type RecvCallback func(transportDomain, transportAddress string, wholeMsg []byte)

// TimerCallback drives the dispatcher's receiveTimerTick.
type TimerCallback func()

// TransportDispatcher is the boundary between the Message & PDU Dispatcher
// and an actual network socket. SnmpEngine talks only to this interface;
// transport_udp.go is the one concrete binding this engine ships.
type TransportDispatcher interface {
	RegisterRecvCallback(fn RecvCallback)
	UnregisterRecvCallback()
	RegisterTimerCallback(interval time.Duration, fn TimerCallback)
	UnregisterTimerCallback()
	SendMessage(wholeMsg []byte, transportDomain, transportAddress string) error
	RunDispatcher(stop <-chan struct{}) error
	Close() error
}
