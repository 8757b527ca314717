package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"udp-meter/pkg/types"
)

// Parser reads pcap files and extracts probe datagrams.
type Parser struct {
	port int
}

// NewParser creates a parser keeping UDP datagrams sent to port.
// A zero port keeps every UDP datagram.
func NewParser(port int) *Parser {
	return &Parser{port: port}
}

// Parse returns the UDP datagrams of a capture in file order.
func (p *Parser) Parse(filename string) ([]types.Datagram, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filename, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", filename, err)
	}

	linkType := r.LinkType()
	log.WithField("link_type", linkType.String()).Debug("PCAP link type detected")

	var datagrams []types.Datagram
	totalPackets := 0
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet %d: %w", totalPackets+1, err)
		}
		totalPackets++

		pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		if p.port != 0 && int(udp.DstPort) != p.port {
			continue
		}

		var srcIP, dstIP net.IP
		if ipv4Layer := pkt.Layer(layers.LayerTypeIPv4); ipv4Layer != nil {
			ipv4, _ := ipv4Layer.(*layers.IPv4)
			srcIP = ipv4.SrcIP
			dstIP = ipv4.DstIP
		} else if ipv6Layer := pkt.Layer(layers.LayerTypeIPv6); ipv6Layer != nil {
			ipv6, _ := ipv6Layer.(*layers.IPv6)
			srcIP = ipv6.SrcIP
			dstIP = ipv6.DstIP
		}

		// NoCopy decoding aliases the packet buffer
		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)

		datagrams = append(datagrams, types.Datagram{
			Data:      payload,
			From:      &net.UDPAddr{IP: srcIP, Port: int(udp.SrcPort)},
			To:        &net.UDPAddr{IP: dstIP, Port: int(udp.DstPort)},
			Timestamp: ci.Timestamp,
		})
	}

	log.WithFields(log.Fields{
		"total_packets": totalPackets,
		"datagrams":     len(datagrams),
	}).Info("PCAP parsing complete")

	return datagrams, nil
}
