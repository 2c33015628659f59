// ABOUTME: mDNS service discovery for the receiver
// ABOUTME: Advertises _micreceiver._tcp with the stream format and looks receivers up
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/micreceiver/micreceiver-go/pkg/audio"
)

// ServiceType is the DNS-SD service receivers advertise
const ServiceType = "_micreceiver._tcp"

// DefaultLookupTimeout bounds a Lookup when the caller gives no timeout
const DefaultLookupTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Format      audio.Format
	Version     string
	Logger      *zap.SugaredLogger
}

// Manager handles mDNS advertisement
type Manager struct {
	config Config
	logger *zap.SugaredLogger

	mu     sync.Mutex
	server *mdns.Server
}

// ServerInfo describes a discovered receiver
type ServerInfo struct {
	Name       string
	Host       string
	Port       int
	SampleRate int
	Channels   int
	Encoding   string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Format.IsZero() {
		config.Format = audio.MicFormat
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Manager{
		config: config,
		logger: logger.Named("mdns"),
	}
}

// Advertise announces the receiver until Stop
func (m *Manager) Advertise() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return fmt.Errorf("already advertising")
	}

	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		TXTRecords(m.config.Format, m.config.Version),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{
		Zone:   service,
		Logger: zap.NewStdLog(m.logger.Desugar()),
	})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	m.logger.Infow("Advertising mDNS service",
		"name", m.config.ServiceName,
		"type", ServiceType,
		"port", m.config.Port)
	return nil
}

// Stop withdraws the advertisement. It is safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server == nil {
		return
	}
	if err := m.server.Shutdown(); err != nil {
		m.logger.Warnw("mDNS shutdown failed", "error", err)
	}
	m.server = nil
}

// TXTRecords describes the stream a receiver expects
func TXTRecords(format audio.Format, version string) []string {
	txt := []string{
		fmt.Sprintf("format=s%dle", format.BitDepth),
		"rate=" + strconv.Itoa(format.SampleRate),
		"channels=" + strconv.Itoa(format.Channels),
	}
	if version != "" {
		txt = append(txt, "version="+version)
	}
	return txt
}

// Lookup queries the network once and returns every receiver that answered
// within timeout
func Lookup(ctx context.Context, timeout time.Duration, logger *zap.SugaredLogger) ([]*ServerInfo, error) {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.Named("mdns")

	entries := make(chan *mdns.ServiceEntry, 16)
	var found []*ServerInfo
	seen := make(map[string]bool)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for entry := range entries {
			info := entryToServer(entry)
			if info == nil || seen[info.Addr()] {
				continue
			}
			seen[info.Addr()] = true
			found = append(found, info)
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	params.Logger = zap.NewStdLog(logger.Desugar())

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-collected

	if err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}

	for _, info := range found {
		logger.Debugw("Discovered receiver", "name", info.Name, "addr", info.Addr())
	}
	return found, nil
}

// entryToServer converts an mDNS answer into a ServerInfo, or nil when the
// entry is not a reachable receiver
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	host := ""
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	fields := parseTXT(entry.InfoFields)
	info := &ServerInfo{
		Name:     instanceName(entry.Name),
		Host:     host,
		Port:     entry.Port,
		Encoding: fields["format"],
	}
	info.SampleRate, _ = strconv.Atoi(fields["rate"])
	info.Channels, _ = strconv.Atoi(fields["channels"])
	return info
}

// instanceName strips the service and domain from a full instance name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i >= 0 {
		full = full[:i]
	}
	return strings.ReplaceAll(full, `\ `, " ")
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		out[k] = v
	}
	return out
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
