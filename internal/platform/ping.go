package platform

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-ping/ping"
)

const pingCount = 3

// Reachable sends ICMP echo requests to host and returns an error when no
// reply arrives before timeout.
func Reachable(host string, timeout time.Duration) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "https://"), "/")
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[:i], ":") {
		host = host[:i]
	}
	p, err := ping.NewPinger(host)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", host, err)
	}
	if runtime.GOOS == "windows" {
		p.SetPrivileged(true)
	}
	p.Count = pingCount
	p.Timeout = timeout
	if err := p.Run(); err != nil {
		return fmt.Errorf("pinging %s: %w", host, err)
	}
	if p.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("%s is unresponsive", host)
	}
	return nil
}
