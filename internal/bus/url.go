package bus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidBroker marks broker addresses rejected before any connection
// attempt. Callers can distinguish these from transport failures.
var ErrInvalidBroker = errors.New("invalid broker address")

const (
	defaultPlainPort = 1883
	defaultTLSPort   = 8883
)

// Broker is a parsed broker address.
type Broker struct {
	Scheme string
	Host   string
	Port   int
}

func (b Broker) Address() string {
	return fmt.Sprintf("%s://%s:%d", b.Scheme, b.Host, b.Port)
}

// ParseBrokerURL accepts "host", "host:port" or "scheme://host[:port]".
// Schemes without an explicit port default to 1883, or 8883 for TLS schemes.
func ParseBrokerURL(raw string) (Broker, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Broker{}, fmt.Errorf("%w: empty address", ErrInvalidBroker)
	}

	scheme := "tcp"
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme = strings.ToLower(raw[:idx])
		rest = raw[idx+3:]
	}

	secure := false
	switch scheme {
	case "tcp", "mqtt":
		scheme = "tcp"
	case "ssl", "tls", "mqtts":
		scheme = "ssl"
		secure = true
	case "ws":
	case "wss":
		secure = true
	default:
		return Broker{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBroker, scheme)
	}

	// Strip any path component, keeping websocket endpoints intact is not
	// needed here: the relay always connects to the broker root.
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}

	host := rest
	port := defaultPlainPort
	if secure {
		port = defaultTLSPort
	}

	if idx := strings.LastIndex(rest, ":"); idx >= 0 {
		host = rest[:idx]
		parsed, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return Broker{}, fmt.Errorf("%w: bad port %q", ErrInvalidBroker, rest[idx+1:])
		}
		if parsed < 1 || parsed > 65535 {
			return Broker{}, fmt.Errorf("%w: port %d out of range", ErrInvalidBroker, parsed)
		}
		port = parsed
	}

	if host == "" {
		return Broker{}, fmt.Errorf("%w: missing host in %q", ErrInvalidBroker, raw)
	}

	return Broker{Scheme: scheme, Host: host, Port: port}, nil
}
