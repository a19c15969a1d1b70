// Package discovery finds SoapyRemote servers on the local network and turns
// them into SoapySDR device identifiers.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the DNS-SD service type SoapyRemote advertises.
const Service = "_soapy._tcp"

// Host represents a discovered SoapyRemote server.
type Host struct {
	Instance  string // Advertised name
	Hostname  string // DNS hostname: "pi.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Identifier is the SoapySDR argument string that opens devices behind h
// through the remote driver. IPv4 addresses are preferred over the hostname.
func (h Host) Identifier() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	return fmt.Sprintf("driver=remote,remote=tcp://%s", net.JoinHostPort(host, strconv.Itoa(h.Port)))
}

// Discover browses for SoapyRemote servers until timeout or ctx ends.
func Discover(ctx context.Context, timeout time.Duration) ([]Host, error) {
	return Browse(ctx, Service, timeout)
}

// Browse performs a blocking mDNS browse for service. It returns cleaned
// and deduplicated host entries sorted by hostname and port.
func Browse(ctx context.Context, service string, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	result := make(chan []Host, 1)
	go func() { result <- collect(ctx, entries) }()

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	return <-result, nil
}

// collect drains entries until the channel closes or ctx ends.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Host {
	seen := make(map[string]Host)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sorted(seen)
			}
			if e == nil {
				continue
			}
			addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
			addrs = append(addrs, e.AddrIPv4...)
			addrs = append(addrs, e.AddrIPv6...)

			key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
			seen[key] = Host{
				Instance:  cleanInstance(e.Instance),
				Hostname:  e.HostName,
				Addresses: addrs,
				Port:      e.Port,
				TXT:       append([]string{}, e.Text...),
			}
		case <-ctx.Done():
			return sorted(seen)
		}
	}
}

func sorted(m map[string]Host) []Host {
	out := make([]Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
