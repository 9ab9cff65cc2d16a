package autonetwork

import (
	"testing"

	"github.com/iqrf/iqmesh-gateway/internal/dpa/packet"
	"github.com/stretchr/testify/assert"
)

func Test_CheckLastWave_WaveFinishedByDefault(t *testing.T) {
	o := newTestOrchestrator(InputParams{})
	o.wave.WaveIndex = 1
	assert.Equal(t, WaveFinished, o.checkLastWave())
}

func Test_CheckLastWave_StopOnMaxNumWaves(t *testing.T) {
	o := newTestOrchestrator(InputParams{TotalWaves: 3})
	o.wave.WaveIndex = 3
	assert.Equal(t, StopOnMaxNumWaves, o.checkLastWave())
}

func Test_CheckLastWave_StopOnMaxEmptyWaves(t *testing.T) {
	o := newTestOrchestrator(InputParams{EmptyWaves: 2})
	o.wave.EmptyWaveStreak = 2
	assert.Equal(t, StopOnMaxEmptyWaves, o.checkLastWave())
}

func Test_CheckLastWave_StopOnNumberOfNewNodes(t *testing.T) {
	o := newTestOrchestrator(InputParams{NumberOfNewNodes: 5})
	o.wave.NewNodesTotal = 5
	assert.Equal(t, StopOnNumberOfNewNodes, o.checkLastWave())
}

func Test_CheckLastWave_StopOnNumberOfTotalNodes(t *testing.T) {
	o := newTestOrchestrator(InputParams{NumberOfTotalNodes: 10})
	o.bondedCount = 10
	assert.Equal(t, StopOnNumberOfTotalNodes, o.checkLastWave())
}

func Test_CheckLastWave_AbortOnAllAddressesAllocated(t *testing.T) {
	o := newTestOrchestrator(InputParams{})
	o.bondedCount = packet.MaxAddress
	assert.Equal(t, AbortOnAllAddressesAllocated, o.checkLastWave())
}

func Test_CheckLastWave_AbortOnAllAddressesFromAddressSpaceAllocated(t *testing.T) {
	o := newTestOrchestrator(InputParams{
		Bonding: BondingControl{AddressSpace: map[uint8]bool{1: true, 2: true}},
	})
	o.nodes[1] = &NodeRecord{Address: 1, Bonded: true}
	o.nodes[2] = &NodeRecord{Address: 2, Bonded: true}
	assert.Equal(t, AbortOnAllAddressesFromAddressSpaceAllocated, o.checkLastWave())
}

func Test_CheckLastWave_AbortOnAllMIDsFromMidListAllocated(t *testing.T) {
	o := newTestOrchestrator(InputParams{
		Bonding: BondingControl{
			MIDFiltering: true,
			MIDList:      map[uint32]uint8{0x11111111: 1, 0x22222222: 2},
		},
	})
	o.nodes[1] = &NodeRecord{Address: 1, MID: 0x11111111, Bonded: true}
	o.nodes[2] = &NodeRecord{Address: 2, MID: 0x22222222, Bonded: true}
	assert.Equal(t, AbortOnAllMIDsFromMidListAllocated, o.checkLastWave())
}

func Test_CheckLastWave_PriorityOrder(t *testing.T) {
	// Both max-waves and max-empty-waves conditions hold; max-waves wins.
	o := newTestOrchestrator(InputParams{TotalWaves: 2, EmptyWaves: 1})
	o.wave.WaveIndex = 2
	o.wave.EmptyWaveStreak = 1
	assert.Equal(t, StopOnMaxNumWaves, o.checkLastWave())
}
