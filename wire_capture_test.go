// Copyright 2012-2016 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// TestDecodeSnmpFromEthernetFrame builds an Ethernet/IPv4/UDP frame carrying
// a v2c GetResponse the way a captured packet would arrive off the wire,
// then recovers the UDP payload through gopacket's layer decoder before
// handing it to the v1/v2c Message Processing Model. This exercises the
// same parsing path a pcap-fed packet source would drive, without needing
// a live interface or capture file.
func TestDecodeSnmpFromEthernetFrame(t *testing.T) {
	engine, err := NewSnmpEngine(WithBootCounterFile(t.TempDir() + "/boots"))
	require.NoError(t, err)
	engine.securityV1.addSystem(&v1System{SecurityName: "public", CommunityName: "public"})

	mp, err := newMessageProcessingModel(Version2c, engine)
	require.NoError(t, err)

	out, err := mp.PrepareOutgoingMessage(&outboundRequest{
		pdu: &PDU{
			Type:      GetResponse,
			RequestID: 4242,
			VarBinds:  []VarBind{{Name: ".1.3.6.1.2.1.1.1.0", Type: OctetString, Value: "captured system"}},
		},
		community: "public",
	})
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(192, 168, 1, 1),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(161),
		DstPort: layers.UDPPort(54321),
	}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(out.wire)))

	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, packet.ErrorLayer())

	udpLayer := packet.Layer(layers.LayerTypeUDP)
	require.NotNil(t, udpLayer)
	recoveredUDP, ok := udpLayer.(*layers.UDP)
	require.True(t, ok)
	require.Equal(t, out.wire, []byte(recoveredUDP.Payload))

	in, err := mp.PrepareDataElements(recoveredUDP.Payload)
	require.NoError(t, err)
	require.Equal(t, uint32(4242), in.pdu.RequestID)
	require.Equal(t, "captured system", in.pdu.VarBinds[0].Value)
}
