package route

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEndpoints parses a comma-separated "host:port" list into an endpoint
// set, e.g. "10.0.0.1:9876,10.0.0.2:9876".
func ParseEndpoints(s string) (Endpoints, error) {
	parts := strings.Split(s, ",")
	addrs := make([]Address, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, portStr, found := strings.Cut(part, ":")
		if !found || host == "" {
			return Endpoints{}, fmt.Errorf("invalid address %q, want host:port", part)
		}
		port, err := strconv.ParseInt(portStr, 10, 32)
		if err != nil {
			return Endpoints{}, fmt.Errorf("invalid port in %q: %w", part, err)
		}
		addrs = append(addrs, Address{Host: host, Port: int32(port)})
	}
	if len(addrs) == 0 {
		return Endpoints{}, fmt.Errorf("no addresses in %q", s)
	}
	return Endpoints{Addresses: addrs}, nil
}
