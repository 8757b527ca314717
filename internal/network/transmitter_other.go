//go:build !linux

package network

import (
	"fmt"
	"runtime"

	"github.com/pion/transport/v3"
)

func newNativeTransmitter(nw transport.Net, tos int) (PriorityTransmitter, error) {
	return nil, fmt.Errorf("%w on %s", ErrNativeUnavailable, runtime.GOOS)
}
