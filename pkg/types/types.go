package types

import (
	"net"
	"time"
)

// Datagram is one probe datagram as seen by the receiver.
type Datagram struct {
	Data      []byte
	From      *net.UDPAddr
	To        *net.UDPAddr
	Timestamp time.Time // local arrival time
}
