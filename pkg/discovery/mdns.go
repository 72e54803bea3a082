package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/deskctl/pkg/device"
)

const (
	// ServiceType is what the desk controller firmware advertises.
	ServiceType = "_http._tcp"
	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	DefaultScanTimeout = 5 * time.Second
	defaultPort        = 80
)

// Candidate is an HTTP service found on the local network.
type Candidate struct {
	Instance string
	Hostname string
	IP       string
	Port     int
}

// BaseURL is the address the device client should use.
func (c Candidate) BaseURL() string {
	host := c.IP
	if host == "" {
		host = strings.TrimSuffix(c.Hostname, ".")
	}
	if c.Port == defaultPort {
		if strings.Contains(host, ":") {
			return "http://[" + host + "]"
		}
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// ProbeFunc reports whether baseURL answers like a desk controller.
type ProbeFunc func(ctx context.Context, baseURL string) bool

// Scanner finds desk controllers with mDNS.
type Scanner struct {
	// Timeout bounds the mDNS browse.
	Timeout time.Duration
	// Probe filters browse results. It defaults to a liveness check.
	Probe ProbeFunc
}

func NewScanner(requestTimeout time.Duration) *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Probe: func(ctx context.Context, baseURL string) bool {
			return device.NewClient(baseURL, requestTimeout).TestConnection(ctx)
		},
	}
}

// Scan browses for HTTP services and keeps the ones that pass Probe.
func (s *Scanner) Scan(ctx context.Context) ([]Candidate, error) {
	found, err := s.browse(ctx)
	if err != nil {
		return nil, err
	}
	logrus.WithField("services", len(found)).Debug("mDNS browse finished")
	return s.filter(ctx, found), nil
}

func (s *Scanner) browse(ctx context.Context) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Candidate)
	go func() {
		done <- collect(entries)
	}()

	err = resolver.Browse(ctx, ServiceType, ServiceDomain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once ctx is done.
	return <-done, nil
}

// collect drains entries, dropping duplicates and unusable entries.
func collect(entries <-chan *zeroconf.ServiceEntry) []Candidate {
	var out []Candidate
	seen := map[string]bool{}
	for entry := range entries {
		c, ok := candidateFromEntry(entry)
		if !ok || seen[c.BaseURL()] {
			continue
		}
		seen[c.BaseURL()] = true
		out = append(out, c)
	}
	return out
}

func candidateFromEntry(entry *zeroconf.ServiceEntry) (Candidate, bool) {
	if entry == nil {
		return Candidate{}, false
	}

	// prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" && entry.HostName == "" {
		return Candidate{}, false
	}

	port := entry.Port
	if port == 0 {
		port = defaultPort
	}

	return Candidate{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     port,
	}, true
}

// filter probes all candidates concurrently and keeps the order.
func (s *Scanner) filter(ctx context.Context, in []Candidate) []Candidate {
	if s.Probe == nil {
		return in
	}

	ok := make([]bool, len(in))
	var wg sync.WaitGroup
	for i, c := range in {
		wg.Add(1)
		go func(i int, c Candidate) {
			defer wg.Done()
			ok[i] = s.Probe(ctx, c.BaseURL())
			logrus.WithFields(logrus.Fields{
				"url":  c.BaseURL(),
				"desk": ok[i],
			}).Debug("probed service")
		}(i, c)
	}
	wg.Wait()

	var out []Candidate
	for i, c := range in {
		if ok[i] {
			out = append(out, c)
		}
	}
	return out
}
