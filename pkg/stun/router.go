package stun

// RouterType classifies the local NAT's filtering and port-allocation
// behavior, per spec.md §4.2.
type RouterType string

const (
	RouterNone                RouterType = "NONE"
	RouterConeFull             RouterType = "CONE_FULL"
	RouterConeRestricted       RouterType = "CONE_RESTRICTED"
	RouterConePortRestricted   RouterType = "CONE_PORT_RESTRICTED"
	RouterSymmetricPort        RouterType = "SYMMETRIC_PORT"
	RouterSymmetricAddress     RouterType = "SYMMETRIC_ADDRESS"
)

// PredictionK is the half-width of the predicted port range published
// alongside a point prediction (spec.md §4.2: "K = 10 is acceptable").
const PredictionK = 10

// Probes holds the four external-mapping observations spec.md §4.2
// requires: one per (server IP, server port) combination of the two
// canonical STUN hosts.
type Probes struct {
	P1, P2, P3, P4 Addr // (IP_A,Port_A) (IP_A,Port_B) (IP_B,Port_A) (IP_B,Port_B)
	LocalIP        string
	LocalPort      uint16
	// FilteringOpen reports whether an unsolicited datagram from a
	// different source reached the local socket during the CHANGE-REQUEST
	// probe (spec.md §4.2's filtering test).
	FilteringOpen bool
}

// Classify implements spec.md §4.2's router classification from four
// observed external mappings.
func Classify(p Probes) RouterType {
	allSame := p.P1.Port == p.P2.Port && p.P2.Port == p.P3.Port && p.P3.Port == p.P4.Port &&
		p.P1.IP.Equal(p.P2.IP) && p.P2.IP.Equal(p.P3.IP) && p.P3.IP.Equal(p.P4.IP)

	if allSame && p.P1.IP.String() == p.LocalIP && p.P1.Port == p.LocalPort {
		return RouterNone
	}
	if allSame {
		return RouterConeFull
	}

	// Mapping stable across the IP_B probes (P1 vs P3, same server port,
	// different server IP) but distinct across IP_A/IP_B pairs at large:
	// a cone NAT with some degree of port filtering.
	stableAcrossIP := p.P1.Port == p.P3.Port && p.P1.IP.Equal(p.P3.IP)
	if stableAcrossIP {
		if p.FilteringOpen {
			return RouterConeRestricted
		}
		return RouterConePortRestricted
	}

	// Symmetric: the mapping differs per destination. Subclassify by
	// whether only the destination port, or the full destination
	// address, influences the allocation.
	portOnlyDiffers := p.P1.IP.Equal(p.P2.IP) && p.P1.Port != p.P2.Port
	if portOnlyDiffers {
		return RouterSymmetricPort
	}
	return RouterSymmetricAddress
}

// PredictedRange is the narrow window published alongside a point
// prediction for the peer's next mapped port.
type PredictedRange struct {
	Predicted uint16
	Low       uint16
	High      uint16
}

// PredictPort implements spec.md §4.2's stride-based prediction: for a
// port-sensitive symmetric NAT, Δ = p2 - p1, predicted = p4 + Δ. Given
// (40001, 40003, 40005, 40007) this yields 40009, spec.md §8 property 6.
func PredictPort(p1, p2, p3, p4 uint16) PredictedRange {
	delta := int32(p2) - int32(p1)
	predicted := int32(p4) + delta
	if predicted < 0 {
		predicted = 0
	}
	if predicted > 0xFFFF {
		predicted = 0xFFFF
	}
	low := predicted - PredictionK
	if low < 0 {
		low = 0
	}
	high := predicted + PredictionK
	if high > 0xFFFF {
		high = 0xFFFF
	}
	return PredictedRange{Predicted: uint16(predicted), Low: uint16(low), High: uint16(high)}
}

// CanPredict reports whether router allows point/range port prediction
// at all; address-sensitive symmetric NATs cannot be predicted (spec.md
// §4.2: "prediction fails and the session must signal port-range rather
// than a point").
func CanPredict(router RouterType) bool {
	return router == RouterSymmetricPort
}
