package splitter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iqrf/iqmesh-gateway/internal/autonetwork"
	"github.com/iqrf/iqmesh-gateway/internal/dpa"
	"github.com/iqrf/iqmesh-gateway/internal/lease"
)

func u8(v uint8) *uint8 { return &v }
func b(v bool) *bool    { return &v }

func Test_AutonetworkRequestWire_ApplyTo_KeepsDefaultsWhenOmitted(t *testing.T) {
	defaults := autonetwork.InputParams{
		DiscoveryTxPower: 6,
		ActionRetries:    1,
		TotalWaves:       10,
		EmptyWaves:       2,
	}

	req := autonetworkRequestWire{}
	params, err := req.applyTo(defaults, nil, false)
	require.NoError(t, err)
	assert.Equal(t, defaults.DiscoveryTxPower, params.DiscoveryTxPower)
	assert.Equal(t, defaults.TotalWaves, params.TotalWaves)
	assert.Equal(t, defaults.EmptyWaves, params.EmptyWaves)
}

func Test_AutonetworkRequestWire_ApplyTo_OverridesAndMergesBonding(t *testing.T) {
	defaults := autonetwork.InputParams{DiscoveryTxPower: 6, TotalWaves: 10, EmptyWaves: 2}

	req := autonetworkRequestWire{
		DiscoveryTxPower: u8(3),
		AddressSpace:     []uint8{1, 2, 3},
		MIDList: []autonetworkMIDListEntry{
			{DeviceMID: "0001A2B3", DeviceAddr: u8(5)},
			{DeviceMID: "00000000"}, // MID 0 must be dropped
		},
		MIDFiltering: b(true),
		OverlappingNetworks: &autonetworkOverlappingNetworks{
			Networks: 4,
			Network:  2,
		},
		HWPIDFiltering: []uint16{0x1234},
		StopConditions: &autonetworkStopConditions{
			Waves:                    5,
			EmptyWaves:               1,
			NumberOfTotalNodes:       50,
			AbortOnTooManyNodesFound: true,
		},
	}

	timeout := 2000
	params, err := req.applyTo(defaults, &timeout, true)
	require.NoError(t, err)

	assert.Equal(t, uint8(3), params.DiscoveryTxPower)
	assert.True(t, params.ReturnVerbose)
	assert.Equal(t, 2000, params.Timeout)

	assert.True(t, params.Bonding.AddressSpace[1])
	assert.True(t, params.Bonding.AddressSpace[2])
	assert.True(t, params.Bonding.AddressSpace[3])

	require.Len(t, params.Bonding.MIDList, 1)
	assert.Equal(t, uint8(5), params.Bonding.MIDList[0x0001A2B3])
	assert.True(t, params.Bonding.MIDListActive)

	assert.True(t, params.Bonding.MIDFiltering)
	assert.Equal(t, uint32(4), params.Bonding.OverlappingNetworks.Networks)
	assert.Equal(t, uint32(2), params.Bonding.OverlappingNetworks.Network)

	assert.Equal(t, []uint16{0x1234}, params.HWPIDFiltering)

	assert.Equal(t, uint16(5), params.TotalWaves)
	assert.Equal(t, uint16(1), params.EmptyWaves)
	assert.Equal(t, uint16(50), params.NumberOfTotalNodes)
	assert.True(t, params.AbortOnTooManyNodesFound)
}

func Test_AutonetworkRequestWire_ApplyTo_RejectsMalformedMID(t *testing.T) {
	req := autonetworkRequestWire{
		MIDList: []autonetworkMIDListEntry{{DeviceMID: "not-hex"}},
	}
	_, err := req.applyTo(autonetwork.InputParams{}, nil, false)
	assert.Error(t, err)
}

type noopClient struct{}

func (noopClient) Execute(ctx context.Context, req dpa.Request, timeout time.Duration) (*dpa.Confirmation, *dpa.Response, error) {
	return nil, nil, dpa.ErrTimeout
}

func Test_RegisterAutonetworkHandler_RejectsWhenLeaseHeld(t *testing.T) {
	bus, envs := newCapturingBus()
	l := lease.New()
	release, err := l.Acquire()
	require.NoError(t, err)
	defer release()

	RegisterAutonetworkHandler(bus, noopClient{}, l, autonetwork.InputParams{}, nil)

	raw := envelope(t, AutonetworkMType, RequestData{MsgID: "1"})
	require.NoError(t, bus.Dispatch(context.Background(), raw))

	require.Len(t, *envs, 1)
	var rsp ResponseData
	require.NoError(t, json.Unmarshal((*envs)[0].Data, &rsp))
	assert.Equal(t, StatusBusy, rsp.Status)
}
