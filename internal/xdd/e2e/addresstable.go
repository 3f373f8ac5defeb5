package e2e

import "fmt"

// HostSpec is one entry of the per-target address table: a host contributes
// PortCount consecutive ports starting at BasePort.
type HostSpec struct {
	Host      string
	BasePort  int
	PortCount int // 0 means "exactly one port, BasePort"
}

// Endpoint is one resolved host:port pair a worker connection binds to.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// AddressTable resolves a list of HostSpecs plus a queue depth into exactly
// queueDepth endpoints, round-robining across hosts when no explicit port
// counts leave enough ports to cover the depth.
func AddressTable(hosts []HostSpec, queueDepth int) []Endpoint {
	if len(hosts) == 0 || queueDepth <= 0 {
		return nil
	}
	endpoints := make([]Endpoint, 0, queueDepth)
	cursor := make([]int, len(hosts)) // next port offset to hand out per host
	h := 0
	for len(endpoints) < queueDepth {
		spec := hosts[h]
		count := spec.PortCount
		if count <= 0 {
			count = 1
		}
		if cursor[h] < count {
			endpoints = append(endpoints, Endpoint{Host: spec.Host, Port: spec.BasePort + cursor[h]})
			cursor[h]++
		}
		h = (h + 1) % len(hosts)

		// all hosts exhausted their explicit port counts but depth isn't
		// met yet: wrap around reusing each host's full port range again.
		if h == 0 && allExhausted(cursor, hosts) {
			for i := range cursor {
				cursor[i] = 0
			}
		}
	}
	return endpoints
}

func allExhausted(cursor []int, hosts []HostSpec) bool {
	for i, spec := range hosts {
		count := spec.PortCount
		if count <= 0 {
			count = 1
		}
		if cursor[i] < count {
			return false
		}
	}
	return true
}
