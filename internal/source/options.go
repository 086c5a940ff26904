package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transport selects how RTP is carried for a session.
type Transport int

// Supported transports.
const (
	TransportUDPUnicast Transport = iota
	TransportTCP
	TransportHTTP
	TransportUDPMulticast
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportHTTP:
		return "http"
	case TransportUDPMulticast:
		return "udp-multicast"
	}
	return "udp-unicast"
}

// DefaultTimeout applies when the timeout option is absent.
const DefaultTimeout = 10 * time.Second

// Option keys.
const (
	OptTimeout      = "timeout"
	OptRTPTransport = "rtptransport"
	OptTransport    = "transport"
)

// Options are the per-session settings recognized at construction.
type Options struct {
	Timeout   time.Duration
	Transport Transport
}

// DefaultOptions returns a 10 second timeout over unicast UDP.
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Transport: TransportUDPUnicast}
}

// OptionError reports an option that could not be parsed.
type OptionError struct {
	Key   string
	Value string
	Err   error
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("source: option %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *OptionError) Unwrap() error { return e.Err }

// ParseOptions reads options from a string map. timeout is in whole
// seconds. Unknown keys are ignored.
func ParseOptions(opts map[string]string) (Options, error) {
	o := DefaultOptions()

	if v, ok := opts[OptTimeout]; ok {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Options{}, &OptionError{Key: OptTimeout, Value: v, Err: err}
		}
		if secs <= 0 {
			return Options{}, &OptionError{Key: OptTimeout, Value: v, Err: fmt.Errorf("must be positive")}
		}
		o.Timeout = time.Duration(secs) * time.Second
	}

	key := OptRTPTransport
	v, ok := opts[key]
	if !ok {
		key = OptTransport
		v, ok = opts[key]
	}
	if ok {
		t, err := ParseTransport(v)
		if err != nil {
			return Options{}, &OptionError{Key: key, Value: v, Err: err}
		}
		o.Transport = t
	}
	return o, nil
}

// ParseTransport maps a transport name to a Transport. An empty name means
// unicast UDP.
func ParseTransport(name string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "udp", "udp-unicast":
		return TransportUDPUnicast, nil
	case "tcp":
		return TransportTCP, nil
	case "http":
		return TransportHTTP, nil
	case "multicast", "udp-multicast":
		return TransportUDPMulticast, nil
	}
	return 0, fmt.Errorf("unknown transport %q", name)
}
