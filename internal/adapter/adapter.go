// Package adapter discovers live hosts on configured networks and
// registers the unknown ones as planned devices. Discovery goes through
// the normal command path; nothing here touches the event log directly.
package adapter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"netfabric/internal/config"
	"netfabric/internal/domain"
	"netfabric/internal/identity"
	"netfabric/internal/service"
)

// Discovery scans CIDR targets with nmap and registers hosts it has
// not seen before. Every scan run is one operation: all registrations
// from a run share a correlation id.
type Discovery struct {
	svc      *service.NetworkService
	targets  []string
	interval time.Duration
	timeout  time.Duration

	mu   sync.Mutex
	seen map[string]identity.DeviceID // by IP

	running bool
}

// New creates a discovery adapter from config.
func New(svc *service.NetworkService, cfg config.DiscoveryConfig) *Discovery {
	return &Discovery{
		svc:      svc,
		targets:  cfg.Targets,
		interval: cfg.Interval.Duration(),
		timeout:  cfg.Timeout.Duration(),
		seen:     make(map[string]identity.DeviceID),
	}
}

// Start verifies the nmap binary is usable.
func (d *Discovery) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isNmapAvailable(ctx) {
		return fmt.Errorf("nmap binary not found in PATH")
	}

	d.running = true
	log.Printf("Discovery started (targets=%v, interval=%s)", d.targets, d.interval)
	return nil
}

// Stop shuts down the adapter
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	log.Printf("Discovery stopped")
}

// Run scans immediately, then on every interval tick until the context
// is cancelled.
func (d *Discovery) Run(ctx context.Context) error {
	if _, err := d.Scan(ctx); err != nil {
		log.Printf("Discovery: initial scan failed: %v", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.Scan(ctx); err != nil {
				log.Printf("Discovery: scan failed: %v", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Scan runs one nmap ping sweep across all targets and registers the
// live hosts not seen before. Returns the number of new registrations.
func (d *Discovery) Scan(ctx context.Context) (int, error) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return 0, fmt.Errorf("adapter not running")
	}
	d.mu.Unlock()

	if len(d.targets) == 0 {
		log.Printf("Discovery: no targets configured")
		return 0, nil
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(
		scanCtx,
		nmap.WithTargets(d.targets...),
		nmap.WithPingScan(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create scanner: %w", err)
	}

	log.Printf("Discovery: scanning %d targets: %v", len(d.targets), d.targets)
	result, warnings, err := scanner.Run()
	if err != nil {
		return 0, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.Printf("Discovery: warnings: %v", *warnings)
	}
	if result == nil {
		return 0, fmt.Errorf("nil scan result")
	}

	registered := d.register(ctx, result.Hosts)
	log.Printf("Discovery: scan complete, %d new devices registered", registered)
	return registered, nil
}

// register records every unseen live host as a planned device. One
// correlation covers the whole run.
func (d *Discovery) register(ctx context.Context, hosts []nmap.Host) int {
	run := identity.NewRootEnvelope()
	registered := 0

	for _, host := range hosts {
		if host.Status.State != "up" {
			continue
		}
		ip := primaryIP(host)
		if ip == "" {
			continue
		}

		d.mu.Lock()
		_, known := d.seen[ip]
		d.mu.Unlock()
		if known {
			continue
		}

		name, vendor := hostIdentity(host, ip)
		cmd := domain.RegisterDevice{
			Meta:     domain.DerivedMeta(run),
			DeviceID: identity.NewDeviceID(),
			Name:     name,
			Vendor:   vendor,
		}
		dev, err := d.svc.RegisterDevice(ctx, cmd)
		if err != nil {
			log.Printf("Discovery: failed to register %s: %v", ip, err)
			continue
		}

		d.mu.Lock()
		d.seen[ip] = dev.ID
		d.mu.Unlock()
		registered++
		log.Printf("Discovery: registered %s as %s", ip, dev.ID)
	}

	// TODO: seed the seen set from the store on startup once a device
	// index projection exists; a restart currently re-registers hosts.
	return registered
}

// isNmapAvailable checks if nmap binary exists
func (d *Discovery) isNmapAvailable(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// primaryIP picks the host's IPv4 address, falling back to whatever
// address nmap reported first.
func primaryIP(host nmap.Host) string {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			return addr.Addr
		}
	}
	if len(host.Addresses) > 0 {
		return host.Addresses[0].Addr
	}
	return ""
}

// hostIdentity derives a device name and vendor from scan results: the
// reverse-DNS short name when present, the IP otherwise; the vendor
// from the MAC OUI lookup when nmap saw one.
func hostIdentity(host nmap.Host, ip string) (name, vendor string) {
	name = ip
	if len(host.Hostnames) > 0 && host.Hostnames[0].Name != "" {
		hostname := host.Hostnames[0].Name
		name = hostname
		if idx := strings.Index(hostname, "."); idx > 2 {
			name = hostname[:idx]
		}
	}

	for _, addr := range host.Addresses {
		if addr.AddrType == "mac" && addr.Vendor != "" {
			vendor = addr.Vendor
			break
		}
	}
	return name, vendor
}
