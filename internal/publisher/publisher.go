// Package publisher emits the autonetwork orchestrator's per-wave progress
// and result messages to the splitter bus (spec.md §4.5), grounded on the
// teacher's channel-based registry-event publication
// (coordinator/internal/registry), generalized from a single Go-channel
// event type to the two message shapes the splitter's JSON bus expects.
package publisher

import (
	"context"
	"encoding/hex"
	"strings"
	"time"
)

// TransactionRecord is one DPA exchange, kept for verbose responses
// (spec.md §4.5, SPEC_FULL.md §7).
type TransactionRecord struct {
	Request        []byte
	RequestTs      time.Time
	Confirmation   []byte
	ConfirmationTs time.Time
	Response       []byte
	ResponseTs     time.Time
}

// hexDot renders b as dot-separated hex bytes, e.g. "00.01.A2" (spec.md §6).
func hexDot(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{v}))
	}
	return strings.Join(parts, ".")
}

// WireTransaction is the wire shape of a TransactionRecord, as rendered by
// TransactionRecord.Wire (spec.md §4.5: request/confirmation/response each
// as dot-separated hex, with timestamps).
type WireTransaction struct {
	Request        string    `json:"request"`
	RequestTs      time.Time `json:"requestTs"`
	Confirmation   string    `json:"confirmation,omitempty"`
	ConfirmationTs time.Time `json:"confirmationTs,omitzero"`
	Response       string    `json:"response"`
	ResponseTs     time.Time `json:"responseTs"`
}

func (t TransactionRecord) Wire() WireTransaction {
	return WireTransaction{
		Request:        hexDot(t.Request),
		RequestTs:      t.RequestTs,
		Confirmation:   hexDot(t.Confirmation),
		ConfirmationTs: t.ConfirmationTs,
		Response:       hexDot(t.Response),
		ResponseTs:     t.ResponseTs,
	}
}

// NewNodeMsg mirrors autonetwork.NewNode in the wire shape (address, MID
// hex string) expected by spec.md §4.5 / §6.
type NewNodeMsg struct {
	Address uint8  `json:"address"`
	MID     string `json:"mid"`
}

// WaveState is the optional verbose per-wave diagnostic payload (spec.md
// §4.5).
type WaveState struct {
	Raw []WireTransaction `json:"raw,omitempty"`
}

// ProgressMessage is emitted at every phase boundary inside a wave (spec.md
// §4.5).
type ProgressMessage struct {
	Wave      uint16    `json:"wave"`
	StateCode int       `json:"waveStateCode"`
	Progress  uint8     `json:"progress"`
	WaveState *WaveState `json:"waveState,omitempty"`
}

// ResultMessage is emitted once at the end of every wave; the last wave's
// result carries LastWave=true and closes the run (spec.md §4.5).
type ResultMessage struct {
	ProgressMessage
	NodesNr    int          `json:"nodesNr"`
	NewNodesNr int          `json:"newNodesNr"`
	NewNodes   []NewNodeMsg `json:"newNodes"`
	LastWave   bool         `json:"lastWave"`
}

// Publisher is the orchestrator's collaborator contract toward the
// splitter bus.
type Publisher interface {
	Progress(ctx context.Context, msg ProgressMessage) error
	Result(ctx context.Context, msg ResultMessage) error
}
