package capture

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

const snapLen = 65535

var (
	senderMAC   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	receiverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer stores received datagrams as Ethernet/IPv4/UDP frames in a pcap file.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	w       *pcapgo.Writer
	packets int
	mu      sync.Mutex
}

// NewWriter creates the capture file and writes the pcap header.
func NewWriter(filename string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file %s: %w", filename, err)
	}

	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	log.WithField("file", filename).Info("Capturing received datagrams")
	return &Writer{file: f, buf: buf, w: w}, nil
}

// Record writes one datagram received from -> to at the given time.
func (c *Writer) Record(data []byte, from, to net.Addr, at time.Time) error {
	src, ok := from.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("unsupported source address %v", from)
	}
	dst, ok := to.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("unsupported destination address %v", to)
	}

	frame, err := encodeFrame(data, src, dst)
	if err != nil {
		return err
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(frame),
		Length:        len(frame),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	c.packets++
	return nil
}

// Packets returns the number of frames written.
func (c *Writer) Packets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packets
}

// Close flushes and closes the capture file.
func (c *Writer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.buf.Flush(); err != nil {
		c.file.Close()
		return fmt.Errorf("failed to flush capture: %w", err)
	}
	return c.file.Close()
}

func encodeFrame(data []byte, src, dst *net.UDPAddr) ([]byte, error) {
	srcIP, dstIP := src.IP.To4(), dst.IP.To4()
	if srcIP == nil {
		return nil, fmt.Errorf("capture supports IPv4 only, got %s", src.IP)
	}
	if dstIP == nil || dstIP.IsUnspecified() {
		// socket bound to the wildcard address
		dstIP = net.IPv4(127, 0, 0, 1).To4()
	}

	eth := &layers.Ethernet{
		SrcMAC:       senderMAC,
		DstMAC:       receiverMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("failed to set checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(data)); err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}
