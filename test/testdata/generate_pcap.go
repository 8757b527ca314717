//go:build ignore

// This program generates a sample probe capture for the analyze command.
package main

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"udp-meter/internal/capture"
	"udp-meter/internal/packet"
)

func main() {
	filename := "test/testdata/sample.pcap"
	if len(os.Args) > 1 {
		filename = os.Args[1]
	}

	w, err := capture.NewWriter(filename)
	if err != nil {
		panic(err)
	}
	defer w.Close()

	sender := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 5201}
	meter := &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: 5201}
	ts := time.Now()
	payload := make([]byte, 1000)

	// 200 packets of 2 fragments, 10ms apart, with every 50th packet lost
	for seq := uint32(1); seq <= 200; seq++ {
		if seq%50 == 0 {
			continue
		}
		sent := ts.Add(time.Duration(seq) * 10 * time.Millisecond)
		arrival := sent.Add(5*time.Millisecond + time.Duration(rand.Intn(2000))*time.Microsecond)
		for offset := 1; offset >= 0; offset-- {
			h := packet.Header{
				Sequence:        seq,
				FragmentOffset:  uint16(offset),
				PayloadLength:   uint16(len(payload)),
				SourcePort:      uint16(sender.Port),
				SenderTimestamp: float64(sent.UnixNano()) / 1e9,
			}
			at := arrival.Add(time.Duration(1-offset) * 100 * time.Microsecond)
			if err := w.Record(append(h.Encode(), payload...), sender, meter, at); err != nil {
				panic(err)
			}
		}
	}

	fmt.Printf("Generated %s with %d datagrams\n", filename, w.Packets())
}
