package coordination

import "fmt"

// Identity names a single service instance within a deployment: the
// isolation-domain/autonomous-system pair it belongs to, the type of
// service it runs, and an instance id unique among siblings of that type.
//
// Identity derives the coordination layer's path prefix — every node this
// instance's client creates, reads, or watches lives under Prefix().
type Identity struct {
	// ISDAS is the ISD-AS identifier, e.g. "1-ff00:0:110".
	ISDAS string
	// ServiceType names the kind of service, e.g. "beacon_server".
	ServiceType string
	// InstanceID uniquely identifies this instance among others of the
	// same ServiceType within ISDAS.
	InstanceID string
}

// Prefix returns the path under which this instance's coordination nodes
// live: "/<ISD-AS>/<service-type>".
func (id Identity) Prefix() string {
	return fmt.Sprintf("/%s/%s", id.ISDAS, id.ServiceType)
}

// String renders a human-readable identifier, used in log fields, as the
// lock contender address, and as the party member identifier callers
// typically pass to NewParty. It contains no "/", so it names a single
// store node rather than a nested path.
func (id Identity) String() string {
	return fmt.Sprintf("%s-%s-%s", id.ISDAS, id.ServiceType, id.InstanceID)
}

// resolvePath joins a path against the identity's prefix. When absolute is
// true, p is returned unchanged; otherwise the prefix is prepended, whether
// or not p starts with "/".
func (id Identity) resolvePath(p string, absolute bool) string {
	if absolute {
		return p
	}
	prefix := id.Prefix()
	if len(p) > 0 && p[0] == '/' {
		return prefix + p
	}
	return prefix + "/" + p
}
