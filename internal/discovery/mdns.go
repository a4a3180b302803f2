// Package discovery advertises camera servers over mDNS and lets viewers
// find them.
package discovery

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the DNS-SD type camera servers register under.
const ServiceType = "_camstream._tcp"

// Config holds discovery configuration.
type Config struct {
	ServiceName string
	Port        int
	// Path is advertised in the TXT record so viewers know where the
	// stream lives.
	Path string
	// BrowseTimeout bounds each query round while browsing.
	BrowseTimeout time.Duration
}

// CameraInfo describes a discovered camera server.
type CameraInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// StreamURL is the address of the camera's MJPEG stream.
func (c *CameraInfo) StreamURL() string {
	path := c.Path
	if path == "" {
		path = "/stream"
	}
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(c.Host, fmt.Sprint(c.Port)), path)
}

// Manager handles mDNS operations.
type Manager struct {
	config  Config
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	cameras chan *CameraInfo
}

// NewManager creates a discovery manager.
func NewManager(config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Path == "" {
		config.Path = "/stream"
	}
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		logger:  logger.Named("mdns"),
		ctx:     ctx,
		cancel:  cancel,
		cameras: make(chan *CameraInfo, 10),
	}
}

// Advertise registers this server until Stop is called.
func (m *Manager) Advertise() error {
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
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service, Logger: quietLogger()})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising mDNS service",
		zap.String("name", m.config.ServiceName),
		zap.String("type", ServiceType),
		zap.Int("port", m.config.Port))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for camera servers in the background. Results arrive on
// Cameras.
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				cam := toCameraInfo(entry)
				if cam == nil {
					continue
				}
				m.logger.Debug("discovered camera", zap.String("name", cam.Name), zap.String("url", cam.StreamURL()))

				select {
				case m.cameras <- cam:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     m.config.BrowseTimeout,
			Entries:     entries,
			DisableIPv6: true,
			Logger:      quietLogger(),
		}
		if err := mdns.Query(params); err != nil {
			m.logger.Debug("mdns query failed", zap.Error(err))
			select {
			case <-m.ctx.Done():
			case <-time.After(m.config.BrowseTimeout):
			}
		}
		close(entries)
		<-done
	}
}

func toCameraInfo(entry *mdns.ServiceEntry) *CameraInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	cam := &CameraInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			cam.Path = path
		}
	}
	return cam
}

// Cameras returns the channel of discovered cameras.
func (m *Manager) Cameras() <-chan *CameraInfo {
	return m.cameras
}

// Stop stops advertising and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

// quietLogger drops the library's own chatter; results are logged through
// zap instead.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// getLocalIPs returns the IPv4 addresses of non-loopback interfaces.
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
