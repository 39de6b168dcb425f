// Package portmap defines the narrow consumer interface StuntSession uses
// to ask an external port-mapping facade (NAT-PMP/UPnP) to install a
// mapping before attempting a hole punch, per spec.md §4.3/§6. The core
// never implements NAT-PMP/UPnP itself; callers supply an implementation.
package portmap

import "context"

// Facade is the external collaborator a StuntSession consults before
// attempting a hole punch.
type Facade interface {
	// AddMapping asks the facade to forward internalPort to an external
	// port, returning the external port on success.
	AddMapping(ctx context.Context, internalPort uint16) (externalPort uint16, err error)
	// RemoveMapping releases a previously installed mapping.
	RemoveMapping(ctx context.Context, internalPort uint16) error
}
