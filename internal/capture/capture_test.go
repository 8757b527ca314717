package capture

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udp-meter/internal/packet"
)

func TestWriter_RoundTripThroughParser(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rx.pcap")
	w, err := NewWriter(file)
	require.NoError(t, err)

	sender := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 40000}
	local := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5201}
	other := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 9999}
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := append(packet.Header{Sequence: 1, FragmentOffset: 1, SourcePort: 5201}.Encode(), 1, 2, 3)
	second := packet.Header{Sequence: 1, FragmentOffset: 0, SourcePort: 5201}.Encode()

	require.NoError(t, w.Record(first, sender, local, base))
	require.NoError(t, w.Record([]byte("noise"), sender, other, base.Add(time.Millisecond)))
	require.NoError(t, w.Record(second, sender, local, base.Add(2*time.Millisecond)))
	assert.Equal(t, 3, w.Packets())
	require.NoError(t, w.Close())

	datagrams, err := NewParser(5201).Parse(file)
	require.NoError(t, err)
	require.Len(t, datagrams, 2)

	assert.Equal(t, first, datagrams[0].Data)
	assert.Equal(t, second, datagrams[1].Data)
	assert.True(t, datagrams[0].From.IP.Equal(sender.IP))
	assert.Equal(t, 40000, datagrams[0].From.Port)
	assert.Equal(t, 5201, datagrams[1].To.Port)
	assert.True(t, datagrams[1].Timestamp.Equal(base.Add(2*time.Millisecond)))

	all, err := NewParser(0).Parse(file)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestWriter_WildcardDestination(t *testing.T) {
	file := filepath.Join(t.TempDir(), "any.pcap")
	w, err := NewWriter(file)
	require.NoError(t, err)

	err = w.Record([]byte{1, 2}, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, &net.UDPAddr{IP: net.IPv4zero, Port: 5201}, time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	datagrams, err := NewParser(5201).Parse(file)
	require.NoError(t, err)
	require.Len(t, datagrams, 1)
	assert.Equal(t, []byte{1, 2}, datagrams[0].Data)
}

func TestWriter_RejectsNonUDPAddress(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "x.pcap"))
	require.NoError(t, err)
	defer w.Close()

	err = w.Record([]byte{1}, &net.TCPAddr{}, &net.UDPAddr{}, time.Now())
	assert.Error(t, err)
}

func TestParser_MissingFile(t *testing.T) {
	_, err := NewParser(0).Parse(filepath.Join(t.TempDir(), "absent.pcap"))
	assert.Error(t, err)
}
