// Package autonetwork implements the Autonetwork orchestrator: the
// multi-wave protocol driver that grows an IQMESH network from a
// coordinator by inviting unbonded nodes to pre-bond, verifying them via
// aggregated FRC queries, authorizing them into the bond table, pruning
// failures, and re-running discovery (spec.md §4.4).
package autonetwork

// AuthorizeErr enumerates the reasons authorizeControl can refuse a
// candidate (spec.md §4.4.7).
type AuthorizeErr int

const (
	AuthorizeErrNone AuthorizeErr = iota
	AuthorizeErrNodeBonded
	AuthorizeErrNetworkNum
	AuthorizeErrMIDFiltering
	AuthorizeErrHWPIDFiltering
	AuthorizeErrAddress
	AuthorizeErrFrc
)

func (e AuthorizeErr) String() string {
	switch e {
	case AuthorizeErrNone:
		return "none"
	case AuthorizeErrNodeBonded:
		return "nodeBonded"
	case AuthorizeErrNetworkNum:
		return "networkNum"
	case AuthorizeErrMIDFiltering:
		return "midFiltering"
	case AuthorizeErrHWPIDFiltering:
		return "hwpidFiltering"
	case AuthorizeErrAddress:
		return "address"
	case AuthorizeErrFrc:
		return "frc"
	default:
		return "unknown"
	}
}

// NodeRecord is one per address 0..239, owned by the orchestrator for the
// duration of one run (spec.md §3).
type NodeRecord struct {
	Address    uint8
	MID        uint32
	HWPID      uint16
	HWPIDVer   uint16
	Bonded     bool
	Discovered bool
	Online     bool
}

// Candidate is a pre-bonded candidate that answered the current wave's
// alive-check (spec.md §3). Candidates live only inside one wave.
type Candidate struct {
	SourceAddress     uint8
	MID               uint32
	HWPID             uint16
	HWPIDVer          uint16
	ProposedAddress   uint8
	SupportsMultiAuth bool
	Authorize         bool
	Error             AuthorizeErr
}

// AuthMode is the firmware-capability dispatch tag computed once after
// UpdateNetworkInfo (spec.md §9: "replace the sprinkled if DPA >= 4.14
// with a single tagged variant").
type AuthMode int

const (
	SingleAuthOnly AuthMode = iota
	MultiAuthBatched
)

// OverlappingNetworks configures the overlapping-networks bonding control
// (spec.md §3); Networks==0 disables it.
type OverlappingNetworks struct {
	Networks uint32
	Network  uint32
}

func (o OverlappingNetworks) Enabled() bool {
	return o.Networks != 0 && o.Network != 0
}

// BondingControl groups the MID-list / address-space / overlapping-
// networks bonding controls (spec.md §3).
type BondingControl struct {
	AddressSpace        map[uint8]bool // nil/empty means "no restriction"
	MIDList             map[uint32]uint8
	MIDListActive       bool
	MIDFiltering        bool
	OverlappingNetworks OverlappingNetworks
}

// InputParams are const for the run (spec.md §3).
type InputParams struct {
	DiscoveryTxPower         uint8
	DiscoveryBeforeStart     bool
	SkipDiscoveryEachWave    bool
	SkipPrebonding           bool
	UnbondUnrespondingNodes  bool
	AbortOnTooManyNodesFound bool
	ActionRetries            uint8

	Bonding BondingControl

	HWPIDFiltering []uint16

	TotalWaves        uint16
	EmptyWaves        uint16
	NumberOfTotalNodes uint16
	NumberOfNewNodes   uint16

	ReturnVerbose bool
	Timeout       int // milliseconds, 0 means client default
}

// NewNode is a confirmed-reachable address/MID pair, reported in a wave's
// result (spec.md §3, §4.5).
type NewNode struct {
	Address uint8
	MID     uint32
}

// WaveState is the mutable per-run wave tracking state (spec.md §3).
type WaveState struct {
	WaveIndex         uint16
	EmptyWaveStreak   uint16
	NewNodesTotal     uint16
	NewNodesThisWave  uint16
	ProgressPercent   uint8
	StateCode         WaveStateCode
	RespondedNew      []uint8
}
