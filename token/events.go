package token

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type EventKind string

const (
	EventMint              EventKind = "mint"
	EventBurn              EventKind = "burn"
	EventTransfer          EventKind = "transfer"
	EventApproval          EventKind = "approval"
	EventPause             EventKind = "pause"
	EventUnpause           EventKind = "unpause"
	EventOwnershipTransfer EventKind = "ownership_transfer"
)

// Event records one applied state change. From and To carry the accounts the
// kind concerns: minted-to, burned-from, transfer endpoints, approval owner and
// spender, or old and new owner. Amount is nil for kinds that move no value.
type Event struct {
	Kind   EventKind
	From   common.Address
	To     common.Address
	Amount *uint256.Int
	Time   time.Time
}

// EventSink receives every applied event. The sink is invoked with the token
// lock held, so sinks must not call back into the Token.
type EventSink func(Event)
