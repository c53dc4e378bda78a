// Package token implements the RainCloud fungible ledger: balances, transfers,
// allowances, supply accounting, and the owner's pause control. Minting is a
// primitive here; authorization of delegated mints lives in package mintauth.
package token

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
)

const (
	TokenName     = "Rain Cloud Protocol"
	TokenSymbol   = "RAIN"
	TokenDecimals = 18
)

// UnlimitedAllowance marks an approval that TransferFrom and BurnFrom never
// decrement.
var UnlimitedAllowance = new(uint256.Int).SetAllOne()

var zeroAddress common.Address

// wholeUnit is 10^TokenDecimals, the number of base units in one whole token.
var wholeUnit = uint256.NewInt(1000000000000000000)

// Token is an in-memory fungible ledger. All exported methods are safe for
// concurrent use.
type Token struct {
	mu sync.RWMutex

	owner       common.Address
	paused      bool
	totalSupply *uint256.Int

	balances     map[common.Address]*uint256.Int
	allowances   map[common.Address]map[common.Address]*uint256.Int
	permitNonces map[common.Address]uint64

	encoder *eip712.Encoder
	sink    EventSink

	now func() time.Time
}

// New returns an empty ledger controlled by owner. The encoder fixes the
// protocol instance under which Permit signatures are verified.
func New(owner common.Address, encoder *eip712.Encoder) *Token {
	return &Token{
		owner:        owner,
		totalSupply:  new(uint256.Int),
		balances:     make(map[common.Address]*uint256.Int),
		allowances:   make(map[common.Address]map[common.Address]*uint256.Int),
		permitNonces: make(map[common.Address]uint64),
		encoder:      encoder,
		now:          time.Now,
	}
}

// SetEventSink registers the sink that observes applied events. Passing nil
// disables event delivery.
func (t *Token) SetEventSink(sink EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

func (t *Token) Name() string {
	return TokenName
}

func (t *Token) Symbol() string {
	return TokenSymbol
}

func (t *Token) Decimals() uint8 {
	return TokenDecimals
}

func (t *Token) CurrentOwner() common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.owner
}

func (t *Token) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.Clone()
}

// TotalSupplyWholeUnits returns the supply denominated in whole tokens,
// rounded down.
func (t *Token) TotalSupplyWholeUnits() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Div(t.totalSupply, wholeUnit)
}

func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	balance := t.balances[account]
	if balance == nil {
		return new(uint256.Int)
	}
	return balance.Clone()
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	allowance := t.allowanceRef(owner, spender)
	if allowance == nil {
		return new(uint256.Int)
	}
	return allowance.Clone()
}

// Mint credits amount base units to the recipient and grows the total supply.
// Authorization is the caller's concern; the ledger itself refuses only a
// paused state, a zero recipient, and supply overflow.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mint(to, amount)
}

// OwnerMint is the owner's direct, signature-free mint path.
func (t *Token) OwnerMint(caller, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return ErrUnauthorized
	}
	return t.mint(to, amount)
}

func (t *Token) mint(to common.Address, amount *uint256.Int) error {
	if t.paused {
		return ErrSuspended
	}
	if to == zeroAddress {
		return ErrInvalidRecipient
	}
	amount = valueOrZero(amount)

	newSupply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	t.totalSupply = newSupply
	t.creditBalance(to, amount)
	t.emit(EventMint, zeroAddress, to, amount)
	return nil
}

// Burn destroys amount base units from the caller's balance and shrinks the
// total supply.
func (t *Token) Burn(caller common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	return t.burn(caller, valueOrZero(amount))
}

// BurnFrom destroys amount base units from account, spending the caller's
// allowance.
func (t *Token) BurnFrom(caller, account common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	amount = valueOrZero(amount)
	if err := t.checkAllowance(account, caller, amount); err != nil {
		return err
	}
	if err := t.burn(account, amount); err != nil {
		return err
	}
	t.consumeAllowance(account, caller, amount)
	return nil
}

func (t *Token) burn(account common.Address, amount *uint256.Int) error {
	if err := t.debitBalance(account, amount); err != nil {
		return err
	}
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	t.emit(EventBurn, account, zeroAddress, amount)
	return nil
}

// Transfer moves amount base units from the caller to the recipient.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	if to == zeroAddress {
		return ErrInvalidRecipient
	}
	return t.move(from, to, valueOrZero(amount))
}

// TransferFrom moves amount base units from one account to another, spending
// spender's allowance over the source account.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	if to == zeroAddress {
		return ErrInvalidRecipient
	}
	amount = valueOrZero(amount)
	if err := t.checkAllowance(from, spender, amount); err != nil {
		return err
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.consumeAllowance(from, spender, amount)
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	if err := t.debitBalance(from, amount); err != nil {
		return err
	}
	t.creditBalance(to, amount)
	t.emit(EventTransfer, from, to, amount)
	return nil
}

// Approve sets spender's allowance over the caller's balance to amount,
// replacing any previous allowance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	if spender == zeroAddress {
		return ErrInvalidRecipient
	}
	amount = valueOrZero(amount)
	t.setAllowance(owner, spender, amount)
	t.emit(EventApproval, owner, spender, amount)
	return nil
}

// SpendAllowance decrements spender's allowance over owner's balance without
// moving value. An UnlimitedAllowance is left untouched.
func (t *Token) SpendAllowance(owner, spender common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrSuspended
	}
	amount = valueOrZero(amount)
	if err := t.checkAllowance(owner, spender, amount); err != nil {
		return err
	}
	t.consumeAllowance(owner, spender, amount)
	return nil
}

// Pause suspends every state-mutating ledger operation. Only the owner may
// pause, and pausing an already paused token is refused.
func (t *Token) Pause(caller common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return ErrUnauthorized
	}
	if t.paused {
		return ErrAlreadyPaused
	}
	t.paused = true
	t.emit(EventPause, caller, zeroAddress, nil)
	return nil
}

// Unpause lifts the suspension.
func (t *Token) Unpause(caller common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return ErrUnauthorized
	}
	if !t.paused {
		return ErrNotPaused
	}
	t.paused = false
	t.emit(EventUnpause, caller, zeroAddress, nil)
	return nil
}

// TransferOwnership hands the owner role, and with it the authority behind
// delegated mint signatures, to newOwner.
func (t *Token) TransferOwnership(caller, newOwner common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return ErrUnauthorized
	}
	if newOwner == zeroAddress {
		return ErrInvalidRecipient
	}
	previous := t.owner
	t.owner = newOwner
	t.emit(EventOwnershipTransfer, previous, newOwner, nil)
	return nil
}

func (t *Token) creditBalance(account common.Address, amount *uint256.Int) {
	current := t.balances[account]
	if current == nil {
		current = new(uint256.Int)
	}
	t.balances[account] = new(uint256.Int).Add(current, amount)
}

func (t *Token) debitBalance(account common.Address, amount *uint256.Int) error {
	current := t.balances[account]
	if current == nil || current.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.balances[account] = new(uint256.Int).Sub(current, amount)
	return nil
}

func (t *Token) allowanceRef(owner, spender common.Address) *uint256.Int {
	granted := t.allowances[owner]
	if granted == nil {
		return nil
	}
	return granted[spender]
}

func (t *Token) setAllowance(owner, spender common.Address, value *uint256.Int) {
	granted := t.allowances[owner]
	if granted == nil {
		granted = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = granted
	}
	granted[spender] = value.Clone()
}

func (t *Token) checkAllowance(owner, spender common.Address, amount *uint256.Int) error {
	allowance := t.allowanceRef(owner, spender)
	if allowance != nil && allowance.Eq(UnlimitedAllowance) {
		return nil
	}
	if allowance == nil || allowance.Lt(amount) {
		return ErrInsufficientAllowance
	}
	return nil
}

// consumeAllowance must follow a successful checkAllowance with the same
// arguments under the same lock hold.
func (t *Token) consumeAllowance(owner, spender common.Address, amount *uint256.Int) {
	allowance := t.allowanceRef(owner, spender)
	if allowance.Eq(UnlimitedAllowance) {
		return
	}
	t.allowances[owner][spender] = new(uint256.Int).Sub(allowance, amount)
}

func (t *Token) emit(kind EventKind, from, to common.Address, amount *uint256.Int) {
	if t.sink == nil {
		return
	}
	var cloned *uint256.Int
	if amount != nil {
		cloned = amount.Clone()
	}
	t.sink(Event{Kind: kind, From: from, To: to, Amount: cloned, Time: t.now()})
}

func valueOrZero(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	return amount
}
