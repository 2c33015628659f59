// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers TXT records and decoding of query answers
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

func TestNewManagerDefaults(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Kitchen", Port: 5000})
	if mgr.config.Format != audio.MicFormat {
		t.Errorf("expected default format, got %v", mgr.config.Format)
	}

	// Stop without Advertise is a no-op
	mgr.Stop()
	mgr.Stop()
}

func TestTXTRecords(t *testing.T) {
	got := TXTRecords(audio.MicFormat, "0.2.0")
	want := []string{"format=s16le", "rate=16000", "channels=1", "version=0.2.0"}

	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if n := len(TXTRecords(audio.MicFormat, "")); n != 3 {
		t.Errorf("expected no version record, got %d records", n)
	}
}

func TestEntryToServer(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  *ServerInfo
	}{
		{
			name: "ipv4 receiver",
			entry: &mdns.ServiceEntry{
				Name:       `Living\ Room._micreceiver._tcp.local.`,
				AddrV4:     net.ParseIP("192.168.1.30"),
				Port:       5000,
				InfoFields: []string{"format=s16le", "rate=16000", "channels=1"},
			},
			want: &ServerInfo{Name: "Living Room", Host: "192.168.1.30", Port: 5000, SampleRate: 16000, Channels: 1, Encoding: "s16le"},
		},
		{
			name: "ipv6 only",
			entry: &mdns.ServiceEntry{
				Name:   "Desk._micreceiver._tcp.local.",
				AddrV6: net.ParseIP("fe80::1"),
				Port:   5001,
			},
			want: &ServerInfo{Name: "Desk", Host: "fe80::1", Port: 5001},
		},
		{
			name: "other service",
			entry: &mdns.ServiceEntry{
				Name:   "Printer._ipp._tcp.local.",
				AddrV4: net.ParseIP("192.168.1.9"),
				Port:   631,
			},
		},
		{
			name:  "no address",
			entry: &mdns.ServiceEntry{Name: "Ghost._micreceiver._tcp.local.", Port: 5000},
		},
		{name: "nil entry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entryToServer(tt.entry)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a server")
			}
			if *got != *tt.want {
				t.Errorf("expected %+v, got %+v", *tt.want, *got)
			}
		})
	}
}

func TestServerInfoAddr(t *testing.T) {
	tests := []struct {
		info ServerInfo
		want string
	}{
		{ServerInfo{Host: "192.168.1.30", Port: 5000}, "192.168.1.30:5000"},
		{ServerInfo{Host: "fe80::1", Port: 5001}, "[fe80::1]:5001"},
	}
	for _, tt := range tests {
		if got := tt.info.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseTXT(t *testing.T) {
	got := parseTXT([]string{"rate=16000", "flag", "empty="})
	if got["rate"] != "16000" {
		t.Errorf("expected rate 16000, got %q", got["rate"])
	}
	if v, ok := got["flag"]; !ok || v != "" {
		t.Errorf("expected bare flag key, got %q %v", v, ok)
	}
	if v, ok := got["empty"]; !ok || v != "" {
		t.Errorf("expected empty value, got %q %v", v, ok)
	}
}
