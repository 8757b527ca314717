//go:build linux

package network

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketOpt(t *testing.T, tx *NativeTransmitter, level, opt int) int {
	t.Helper()

	raw, err := tx.conn.(syscall.Conn).SyscallConn()
	require.NoError(t, err)

	var val int
	var optErr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		val, optErr = unix.GetsockoptInt(int(fd), level, opt)
	}))
	require.NoError(t, optErr)
	return val
}

func TestNativeTransmitter_SetsPriority(t *testing.T) {
	nw, err := DefaultNet()
	require.NoError(t, err)

	tx, err := NewTransmitter(nw, ModeNative, 0xA0)
	require.NoError(t, err)
	defer tx.Close()

	native, ok := tx.(*NativeTransmitter)
	require.True(t, ok)
	assert.Equal(t, 5, native.Priority)
	assert.Equal(t, 5, socketOpt(t, native, unix.SOL_SOCKET, unix.SO_PRIORITY))
	assert.Equal(t, 0xA0, socketOpt(t, native, unix.IPPROTO_IP, unix.IP_TOS))
}

func TestNativeTransmitter_ClampsPriority(t *testing.T) {
	nw, err := DefaultNet()
	require.NoError(t, err)

	tx, err := NewTransmitter(nw, ModeNative, 0xE0)
	require.NoError(t, err)
	defer tx.Close()

	native := tx.(*NativeTransmitter)
	assert.Equal(t, maxUnprivilegedPriority, native.Priority)
}

func TestNewTransmitter_AutoPrefersNative(t *testing.T) {
	nw, err := DefaultNet()
	require.NoError(t, err)

	tx, err := NewTransmitter(nw, ModeAuto, 0x80)
	require.NoError(t, err)
	defer tx.Close()

	_, ok := tx.(*NativeTransmitter)
	assert.True(t, ok)
}
