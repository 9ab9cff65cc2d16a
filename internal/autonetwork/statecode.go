package autonetwork

// WaveStateCode enumerates every state the orchestrator can publish
// (spec.md §4.4.1). Negative values are pre-flight failures, terminal
// without running a wave; zero/positive values are in-wave phases or
// terminal outcomes.
type WaveStateCode int

const (
	// Pre-flight failures (negative).
	CannotStartMaxAddress                          WaveStateCode = -1
	CannotStartTotalNodesNr                        WaveStateCode = -2
	CannotStartNewNodesNr                          WaveStateCode = -3
	CannotStartTotalNodesNrMidList                 WaveStateCode = -4
	CannotStartNewNodesNrMidList                   WaveStateCode = -5
	CannotStartAllNodesMidListBonded               WaveStateCode = -6
	CannotStartDuplicitMidInCoord                  WaveStateCode = -7
	CannotStartAddressSpaceNoFreeAddress           WaveStateCode = -8
	CannotStartNoCoordOrCoordOs                    WaveStateCode = -9

	// In-wave phases and terminal outcomes (zero/positive).
	WaveFinished                                  WaveStateCode = 0
	DiscoveryBeforeStart                          WaveStateCode = 1
	SmartConnect                                  WaveStateCode = 2
	CheckPrebondedAlive                           WaveStateCode = 3
	ReadingDPAVersion                             WaveStateCode = 4
	ReadPrebondedMID                              WaveStateCode = 5
	ReadPrebondedHWPID                            WaveStateCode = 6
	Enumeration                                   WaveStateCode = 7
	Authorize                                     WaveStateCode = 8
	Ping                                          WaveStateCode = 9
	RemoveNotResponded                            WaveStateCode = 10
	Discovery                                     WaveStateCode = 11
	StopOnMaxNumWaves                             WaveStateCode = 12
	StopOnNumberOfTotalNodes                      WaveStateCode = 13
	StopOnMaxEmptyWaves                           WaveStateCode = 14
	StopOnNumberOfNewNodes                        WaveStateCode = 15
	AbortOnTooManyNodesFound                      WaveStateCode = 16
	AbortOnAllAddressesAllocated                  WaveStateCode = 17
	AbortOnAllAddressesFromAddressSpaceAllocated  WaveStateCode = 18
	AbortOnAllMIDsFromMidListAllocated            WaveStateCode = 19
)

// IsTerminal reports whether code ends the run (no further wave runs).
func (c WaveStateCode) IsTerminal() bool {
	if c < 0 {
		return true
	}
	switch c {
	case StopOnMaxNumWaves, StopOnNumberOfTotalNodes, StopOnMaxEmptyWaves,
		StopOnNumberOfNewNodes, AbortOnTooManyNodesFound,
		AbortOnAllAddressesAllocated, AbortOnAllAddressesFromAddressSpaceAllocated,
		AbortOnAllMIDsFromMidListAllocated:
		return true
	default:
		return false
	}
}

// IsCannotStart reports whether code is a pre-flight refusal.
func (c WaveStateCode) IsCannotStart() bool {
	return c < 0
}

var names = map[WaveStateCode]string{
	CannotStartMaxAddress:                        "cannotStartMaxAddress",
	CannotStartTotalNodesNr:                       "cannotStartTotalNodesNr",
	CannotStartNewNodesNr:                         "cannotStartNewNodesNr",
	CannotStartTotalNodesNrMidList:                "cannotStartTotalNodesNrMidList",
	CannotStartNewNodesNrMidList:                  "cannotStartNewNodesNrMidList",
	CannotStartAllNodesMidListBonded:              "cannotStartAllNodesMidListBonded",
	CannotStartDuplicitMidInCoord:                 "cannotStartDuplicitMidInCoord",
	CannotStartAddressSpaceNoFreeAddress:          "cannotStartAddressSpaceNoFreeAddress",
	CannotStartNoCoordOrCoordOs:                   "cannotStartNoCoordOrCoordOs",
	WaveFinished:                                  "waveFinished",
	DiscoveryBeforeStart:                          "discoveryBeforeStart",
	SmartConnect:                                  "smartConnect",
	CheckPrebondedAlive:                           "checkPrebondedAlive",
	ReadingDPAVersion:                             "readingDPAVersion",
	ReadPrebondedMID:                              "readPrebondedMID",
	ReadPrebondedHWPID:                            "readPrebondedHWPID",
	Enumeration:                                   "enumeration",
	Authorize:                                     "authorize",
	Ping:                                          "ping",
	RemoveNotResponded:                            "removeNotResponded",
	Discovery:                                     "discovery",
	StopOnMaxNumWaves:                             "stopOnMaxNumWaves",
	StopOnNumberOfTotalNodes:                      "stopOnNumberOfTotalNodes",
	StopOnMaxEmptyWaves:                           "stopOnMaxEmptyWaves",
	StopOnNumberOfNewNodes:                        "stopOnNumberOfNewNodes",
	AbortOnTooManyNodesFound:                      "abortOnTooManyNodesFound",
	AbortOnAllAddressesAllocated:                  "abortOnAllAddressesAllocated",
	AbortOnAllAddressesFromAddressSpaceAllocated:  "abortOnAllAddressesFromAddressSpaceAllocated",
	AbortOnAllMIDsFromMidListAllocated:            "abortOnAllMIDsFromMidListAllocated",
}

func (c WaveStateCode) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "unknown"
}

// StatusCode maps a WaveStateCode to the response envelope's numeric
// `status` field (spec.md §6): 0 ok, positive sub-codes map 1:1 to
// WaveStateCode via a fixed 1010-based offset for in-wave/terminal codes
// and a 1100-based offset for pre-flight refusals, keeping the service-
// wide codes 1000 (generic), 1001 (parsing), 1002 (busy) free of collision.
func (c WaveStateCode) StatusCode() int {
	if c == WaveFinished {
		return 0
	}
	if c.IsCannotStart() {
		return 1100 - int(c) // CannotStartMaxAddress(-1) -> 1101, etc.
	}
	return 1010 + int(c) // Authorize(8) -> 1018: Enumeration(7)->1017, etc.
}

// Generic service status codes (spec.md §6).
const (
	StatusOK      = 0
	StatusGeneric = 1000
	StatusParsing = 1001
	StatusBusy    = 1002
)
