package printer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// NetworkConnection represents a raw TCP printer connection (port 9100)
type NetworkConnection struct {
	conn    net.Conn
	timeout time.Duration
	mu      sync.Mutex
}

// ConnectNetwork connects to a network printer
func ConnectNetwork(ctx context.Context, host string, port int, timeout time.Duration) (*NetworkConnection, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	address := net.JoinHostPort(host, fmt.Sprint(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network printer %s: %w", address, err)
	}

	return &NetworkConnection{
		conn:    conn,
		timeout: timeout,
	}, nil
}

// Write sends data to the network printer
func (c *NetworkConnection) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.Write(data)
}

// Close closes the network connection
func (c *NetworkConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// Probe reports whether something accepts TCP connections at ip:port
func Probe(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	conn, err := ConnectNetwork(ctx, ip, port, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DetectLocalSubnet returns the first three octets of the first
// non-loopback IPv4 address, e.g. "192.168.0"
func DetectLocalSubnet() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			parts := strings.Split(ipnet.IP.To4().String(), ".")
			return strings.Join(parts[:3], "."), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

// ScanSubnet probes subnet.1 through subnet.254 on port and returns the
// addresses that answered, in no particular order
func ScanSubnet(ctx context.Context, subnet string, port int, workers int) []string {
	if workers <= 0 {
		workers = 1
	}

	ipChan := make(chan string)
	foundChan := make(chan string, 254)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range ipChan {
				if Probe(ctx, ip, port, 300*time.Millisecond) {
					foundChan <- ip
				}
			}
		}()
	}

feed:
	for i := 1; i <= 254; i++ {
		select {
		case <-ctx.Done():
			break feed
		case ipChan <- fmt.Sprintf("%s.%d", subnet, i):
		}
	}
	close(ipChan)

	wg.Wait()
	close(foundChan)

	var found []string
	for ip := range foundChan {
		found = append(found, ip)
	}
	return found
}
