//go:build linux

package network

import (
	"fmt"
	"syscall"

	"github.com/pion/transport/v3"
	"golang.org/x/sys/unix"

	"udp-meter/internal/packet"
)

// maxUnprivilegedPriority is the highest SO_PRIORITY settable without CAP_NET_ADMIN.
const maxUnprivilegedPriority = 6

// NativeTransmitter tags pongs with a kernel socket priority so the Wi-Fi
// driver queues them in the access category matching the TOS byte.
type NativeTransmitter struct {
	*PlainTransmitter
	Priority int
}

func newNativeTransmitter(nw transport.Net, tos int) (PriorityTransmitter, error) {
	plain, err := NewPlainTransmitter(nw, 0)
	if err != nil {
		return nil, err
	}

	sc, ok := plain.conn.(syscall.Conn)
	if !ok {
		plain.Close()
		return nil, fmt.Errorf("%w: socket has no file descriptor", ErrNativeUnavailable)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		plain.Close()
		return nil, fmt.Errorf("%w: %v", ErrNativeUnavailable, err)
	}

	prio := packet.UserPriority(uint8(tos))
	if prio > maxUnprivilegedPriority {
		prio = maxUnprivilegedPriority
	}

	var sockErr error
	ctlErr := raw.Control(func(fd uintptr) {
		if tos != 0 {
			if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos); sockErr != nil {
				return
			}
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, prio)
	})
	if ctlErr != nil || sockErr != nil {
		plain.Close()
		if ctlErr == nil {
			ctlErr = sockErr
		}
		return nil, fmt.Errorf("failed to set socket priority %d: %w", prio, ctlErr)
	}

	plain.tos = tos
	return &NativeTransmitter{PlainTransmitter: plain, Priority: prio}, nil
}
