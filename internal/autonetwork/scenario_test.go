package autonetwork

import (
	"context"
	"testing"

	"github.com/iqrf/iqmesh-gateway/internal/lease"
	"github.com/iqrf/iqmesh-gateway/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher records every progress/result message published during a
// run.
type fakePublisher struct {
	progress []publisher.ProgressMessage
	results  []publisher.ResultMessage
}

func (p *fakePublisher) Progress(ctx context.Context, msg publisher.ProgressMessage) error {
	p.progress = append(p.progress, msg)
	return nil
}

func (p *fakePublisher) Result(ctx context.Context, msg publisher.ResultMessage) error {
	p.results = append(p.results, msg)
	return nil
}

func withCoordParamSaveRestore(c *fakeClient) *fakeClient {
	return c.
		on(0x0D, 0x03, ok([]byte{0x00})).
		on(0x0D, 0x03, ok([]byte{0x00})).
		on(0x00, 0x0A, ok([]byte{0x00})).
		on(0x00, 0x0A, ok([]byte{0x00})).
		on(0x00, 0x09, ok([]byte{0xFF, 0xFF})).
		on(0x00, 0x09, ok([]byte{0xFF, 0xFF}))
}

func peripheralEnumerationBody(dpaVersion uint16) []byte {
	return []byte{byte(dpaVersion), byte(dpaVersion >> 8), 0x00, 0x05, 0x00, 0x00, 0x00}
}

// Test_S1_HappyPathOneNode is spec.md §8 scenario S1: one pre-bonded node,
// one wave, ends in StopOnMaxNumWaves with the node authorized at address 1.
func Test_S1_HappyPathOneNode(t *testing.T) {
	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x02, ok(bitmap30(1))).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30(1))).
		on(0x00, 0x12, ok(nil)).
		on(0x0D, 0x00, ok(frcOK(1, bitmap30(1)))).
		on(0x0D, 0x02, ok(frcOK(1, append(le32(0x00ABCDEF+1), make([]byte, 51)...)))).
		on(0x0D, 0x02, ok(frcOK(0, nil))).
		on(0x00, 0x0D, ok([]byte{1, 1})).
		on(0x00, 0x07, ok([]byte{1, 0})).
		on(0x01, 0x0B, ok(nil))
	withCoordParamSaveRestore(client)

	pub := &fakePublisher{}
	params := InputParams{TotalWaves: 1}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, int(StopOnMaxNumWaves), last.StateCode)
	assert.True(t, last.LastWave)
	assert.Equal(t, 1, last.NodesNr)
	assert.Equal(t, 1, last.NewNodesNr)
	require.Len(t, last.NewNodes, 1)
	assert.Equal(t, uint8(1), last.NewNodes[0].Address)
	assert.Equal(t, "ABCDEF", last.NewNodes[0].MID)

	rec := o.nodes[1]
	require.NotNil(t, rec)
	assert.True(t, rec.Bonded)
}

// Test_S2_DuplicateMIDSameWave is spec.md §8 scenario S2: two responders
// report the same MID; neither is authorized, and the empty-wave streak
// advances.
func Test_S2_DuplicateMIDSameWave(t *testing.T) {
	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x12, ok(nil)).
		on(0x0D, 0x00, ok(frcOK(1, bitmap30(1, 2)))).
		on(0x0D, 0x02, ok(frcOK(1, append(append(le32(0x11111111+1), le32(0x11111111+1)...), make([]byte, 47)...)))).
		on(0x0D, 0x02, ok(frcOK(0, nil))).
		on(0x00, 0x07, ok([]byte{0, 0})).
		on(0x01, 0x0B, ok(nil))
	withCoordParamSaveRestore(client)

	pub := &fakePublisher{}
	params := InputParams{TotalWaves: 1}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, 0, last.NewNodesNr)
	assert.Equal(t, uint16(1), o.wave.EmptyWaveStreak)
	assert.Equal(t, 0, o.bondedCount)
}

// Test_S5_PreflightRefusalFullCoordinator is spec.md §8 scenario S5: the
// coordinator already has all 239 addresses bonded, so no wave runs.
func Test_S5_PreflightRefusalFullCoordinator(t *testing.T) {
	allAddrs := make([]uint8, 0, 239)
	for a := uint8(1); a <= 239; a++ {
		allAddrs = append(allAddrs, a)
	}

	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30Full(allAddrs))).
		on(0x00, 0x06, ok(bitmap30Full(allAddrs))).
		on(0x0D, 0x02, ok(frcOK(0, nil))).
		on(0x01, 0x0B, ok(nil))
	for _, a := range allAddrs {
		client.on(0x05, 0x04, ok(le32(uint32(0x1000+int(a)))))
	}

	pub := &fakePublisher{}
	params := InputParams{TotalWaves: 1}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.Error(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, int(CannotStartMaxAddress), last.StateCode)
	assert.True(t, last.LastWave)
}

// Test_S6_AbortOnTooManyNodesFound is spec.md §8 scenario S6: four
// responders arrive when only two more total nodes are allowed and
// abort_on_too_many_nodes_found is set.
func Test_S6_AbortOnTooManyNodesFound(t *testing.T) {
	bonded := []uint8{1, 2, 3}

	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30Full(bonded))).
		on(0x00, 0x06, ok(bitmap30Full(bonded)))
	for _, a := range bonded {
		client.on(0x05, 0x04, ok(le32(uint32(0x2000+int(a)))))
	}
	client.
		on(0x00, 0x12, ok(nil)).
		on(0x0D, 0x00, ok(frcOK(1, bitmap30(10, 11, 12, 13)))).
		on(0x0D, 0x02, ok(frcOK(0, nil))).
		on(0x01, 0x0B, ok(nil))
	withCoordParamSaveRestore(client)

	pub := &fakePublisher{}
	params := InputParams{
		TotalWaves:               1,
		AbortOnTooManyNodesFound: true,
		NumberOfTotalNodes:       5,
	}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, int(AbortOnTooManyNodesFound), last.StateCode)
	assert.Equal(t, 0, last.NewNodesNr)
}

// Test_S3_UnreachableAfterBond is spec.md §8 scenario S3: a node authorizes
// at address 1, then fails to answer the wave's FRC_PING, so it is removed
// at the coordinator and the bonded bitmap clears it; new_nodes_total is
// left unchanged since the node genuinely was authorized this wave.
func Test_S3_UnreachableAfterBond(t *testing.T) {
	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x12, ok(nil)).
		on(0x0D, 0x00, ok(frcOK(1, bitmap30(1)))).
		on(0x0D, 0x02, ok(frcOK(1, append(le32(0x00112233+1), make([]byte, 51)...)))).
		on(0x0D, 0x02, ok(frcOK(0, bitmap30()))). // selective ping: address 1 does not answer
		on(0x00, 0x0D, ok([]byte{1, 1})).
		on(0x00, 0x0C, ok([]byte{0})). // REMOVE_BOND at coordinator for address 1
		on(0x00, 0x07, ok([]byte{0, 0})).
		on(0x01, 0x0B, ok(nil))
	withCoordParamSaveRestore(client)

	pub := &fakePublisher{}
	params := InputParams{TotalWaves: 1, UnbondUnrespondingNodes: true}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, int(StopOnMaxNumWaves), last.StateCode)
	assert.True(t, last.LastWave)
	assert.Equal(t, 0, last.NodesNr)
	assert.Equal(t, 1, last.NewNodesNr)

	assert.Equal(t, 0, o.bondedCount)
	rec := o.nodes[1]
	require.NotNil(t, rec)
	assert.False(t, rec.Bonded)
}

// Test_S4_MidListHWPIDFilterRejects is spec.md §8 scenario S4: the
// responder's MID has an explicit address in mid_list, but its HWPID is not
// in hwpid_filtering, so it is tagged HWPIDFiltering and never authorized,
// leaving its reserved address free.
func Test_S4_MidListHWPIDFilterRejects(t *testing.T) {
	client := newFakeClient().
		on(0x3F, 0x3F, ok(peripheralEnumerationBody(0x0400))).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x02, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x06, ok(bitmap30())).
		on(0x00, 0x12, ok(nil)).
		on(0x0D, 0x00, ok(frcOK(1, bitmap30(1)))).
		on(0x0D, 0x02, ok(frcOK(1, append(le32(0x22222222+1), make([]byte, 51)...)))).
		on(0x0D, 0x02, ok(frcOK(1, append(le32(0x0100+1), make([]byte, 51)...)))). // HWPID 0x0100, version 0
		on(0x00, 0x07, ok([]byte{0, 0})).
		on(0x01, 0x0B, ok(nil))
	withCoordParamSaveRestore(client)

	pub := &fakePublisher{}
	params := InputParams{
		TotalWaves:     1,
		HWPIDFiltering: []uint16{0x0042},
		Bonding: BondingControl{
			MIDListActive: true,
			MIDList:       map[uint32]uint8{0x22222222: 17},
		},
	}
	o := New(client, lease.New(), pub, params, nil)

	err := o.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, pub.results)
	last := pub.results[len(pub.results)-1]
	assert.Equal(t, int(StopOnMaxNumWaves), last.StateCode)
	assert.Equal(t, 0, last.NewNodesNr)
	assert.Equal(t, 0, o.bondedCount)

	rec := o.nodes[17]
	assert.True(t, rec == nil || !rec.Bonded)
}

// bitmap30Full sets every address in addrs in a 30-byte bitmap.
func bitmap30Full(addrs []uint8) []byte {
	return bitmap30(addrs...)
}
