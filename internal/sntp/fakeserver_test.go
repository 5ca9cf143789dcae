package sntp

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

const (
	ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01
	ntpPacketSize  = 48
)

// fakeServer answers NTP client requests on a loopback UDP port with a fixed
// transmit time
type fakeServer struct {
	conn     *net.UDPConn
	txTime   time.Time
	stratum  uint8
	requests chan byte // client version of each request seen
}

// startFakeServer listens on 127.0.0.1 and replies to every mode 3 request
func startFakeServer(t *testing.T, txTime time.Time, stratum uint8) *fakeServer {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Skipf("cannot listen on loopback UDP: %v", err)
	}

	s := &fakeServer{
		conn:     conn,
		txTime:   txTime,
		stratum:  stratum,
		requests: make(chan byte, 16),
	}
	t.Cleanup(func() { _ = conn.Close() })

	go s.serve()
	return s
}

// startSilentServer listens but never answers
func startSilentServer(t *testing.T) string {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Skipf("cannot listen on loopback UDP: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, ntpPacketSize)
		for {
			if _, _, err := conn.ReadFromUDP(buf); err != nil {
				return
			}
		}
	}()

	return conn.LocalAddr().String()
}

func (s *fakeServer) Addr() string {
	return s.conn.LocalAddr().String()
}

func (s *fakeServer) serve() {
	buf := make([]byte, 512)
	for {
		n, client, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < ntpPacketSize {
			continue
		}

		version := (buf[0] >> 3) & 0x07
		mode := buf[0] & 0x07
		if mode != 3 {
			continue
		}
		select {
		case s.requests <- version:
		default:
		}

		_, _ = s.conn.WriteToUDP(s.reply(buf[:ntpPacketSize], version), client)
	}
}

func (s *fakeServer) reply(req []byte, version byte) []byte {
	out := make([]byte, ntpPacketSize)

	// No leap warning, server mode, poll 2^6, precision 2^-20
	out[0] = (0 << 6) | (version << 3) | 4
	out[1] = s.stratum
	out[2] = 6
	out[3] = byte(0xEC)
	copy(out[12:16], []byte{127, 0, 0, 1})

	refSec, refFrac := toNTPTime(s.txTime.Add(-30 * time.Second))
	binary.BigEndian.PutUint32(out[16:], refSec)
	binary.BigEndian.PutUint32(out[20:], refFrac)

	// Origin echoes the client's transmit timestamp
	copy(out[24:32], req[40:48])

	sec, frac := toNTPTime(s.txTime)
	binary.BigEndian.PutUint32(out[32:], sec)
	binary.BigEndian.PutUint32(out[36:], frac)
	binary.BigEndian.PutUint32(out[40:], sec)
	binary.BigEndian.PutUint32(out[44:], frac)

	return out
}

func toNTPTime(t time.Time) (uint32, uint32) {
	sec := uint64(t.Unix() + ntpEpochOffset)
	frac := (uint64(t.Nanosecond()) << 32) / 1e9
	return uint32(sec), uint32(frac)
}
