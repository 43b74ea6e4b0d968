package generic

import (
	"sort"
	"taglogger/pkg/protocol/opcua"
	"taglogger/pkg/protocol/sim"
	"taglogger/pkg/runtime"
)

// SessionFactories maps a device URL scheme to the engine that talks to it.
var SessionFactories = map[string]runtime.NewSession{
	opcua.Scheme: opcua.NewSession,
	sim.Scheme:   sim.NewSession,
}

func SupportedSchemes() []string {
	schemes := make([]string, 0, len(SessionFactories))
	for scheme := range SessionFactories {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}
