// Command healthcheck probes a running civicrecords server for container
// HEALTHCHECK use. It exits 0 while the records database is reachable, even
// if optional components such as the notification queue are degraded.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/application"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(check(normalizeAddr(os.Getenv("CIVICRECORDS_LISTEN_ADDR")), os.Stderr))
}

// check calls the health endpoint at addr and writes any unhealthy
// components to out.
func check(addr string, out io.Writer) int {
	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		fmt.Fprintf(out, "civicrecords health: %v\n", err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "civicrecords unreachable at %s: %v\n", addr, err)
		return 1
	}
	defer resp.Body.Close()

	var report application.HealthReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&report); err != nil {
		fmt.Fprintf(out, "civicrecords health: unreadable response (HTTP %d)\n", resp.StatusCode)
		return 1
	}

	for _, c := range report.Components {
		if c.Status != application.HealthOK {
			fmt.Fprintf(out, "civicrecords %s is %s: %s\n", c.Name, c.Status, c.Error)
		}
	}

	if resp.StatusCode != http.StatusOK || report.Status == application.HealthDown {
		return 1
	}
	return 0
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. Docker containers bind 0.0.0.0 but the healthcheck runs
// inside the same container, so loopback is reachable and more correct.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
