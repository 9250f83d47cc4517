package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ConnectionState tracks the lifecycle of a wallet session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Update is delivered to subscribers whenever session state changes.
type Update struct {
	State   ConnectionState
	Account common.Address
}

// Session owns the connected-account state derived from a Provider. All
// other components read the signer handle through the session and never
// mutate it; only account-change events from the provider do.
type Session struct {
	provider Provider
	chainID  *big.Int

	mu        sync.Mutex
	state     ConnectionState
	account   common.Address
	signer    Signer
	subs      map[int]func(Update)
	nextSub   int
	listening bool
	unlisten  func()
}

// NewSession wraps a provider bound to the given chain. The provider may be
// nil, in which case Connect fails with ErrNoWallet. A nil chainID skips
// chain verification on connect.
func NewSession(provider Provider, chainID *big.Int) *Session {
	s := &Session{
		provider: provider,
		subs:     make(map[int]func(Update)),
	}
	if chainID != nil {
		s.chainID = new(big.Int).Set(chainID)
	}
	return s
}

// Connect requests account access and binds the session to the first
// authorized account. Reconnecting is allowed and never installs a second
// provider listener.
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoWallet
	}
	s.setState(Connecting, common.Address{})

	if err := s.ensureChain(ctx); err != nil {
		s.setState(Disconnected, common.Address{})
		return err
	}
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.setState(Disconnected, common.Address{})
		return err
	}
	if len(accounts) == 0 {
		s.setState(Disconnected, common.Address{})
		return ErrUserRejected
	}
	signer, err := s.provider.Signer(accounts[0])
	if err != nil {
		s.setState(Disconnected, common.Address{})
		return fmt.Errorf("wallet: obtain signer: %w", err)
	}

	s.mu.Lock()
	s.account = accounts[0]
	s.signer = signer
	s.state = Connected
	s.ensureListenerLocked()
	update := Update{State: Connected, Account: s.account}
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, update)
	return nil
}

// Disconnect clears the session state and detaches the provider listener.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.unlisten != nil {
		s.unlisten()
		s.unlisten = nil
		s.listening = false
	}
	s.account = common.Address{}
	s.signer = nil
	s.state = Disconnected
	update := Update{State: Disconnected}
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, update)
}

// Account returns the connected account, if any.
func (s *Session) Account() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.state == Connected
}

// Signer returns the active signing capability or nil when disconnected.
func (s *Session) Signer() Signer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil
	}
	return s.signer
}

// IsConnected reports whether a signer is available.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Connected
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state updates and returns its removal func.
func (s *Session) Subscribe(fn func(Update)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// ensureChain verifies the provider is attached to the configured chain,
// asking it to switch on mismatch.
func (s *Session) ensureChain(ctx context.Context) error {
	if s.chainID == nil {
		return nil
	}
	current, err := s.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("wallet: read chain id: %w", err)
	}
	if current != nil && current.Cmp(s.chainID) == 0 {
		return nil
	}
	if err := s.provider.SwitchChain(ctx, s.chainID); err != nil {
		return fmt.Errorf("%w: on %v, want %v: %v", ErrWrongChain, current, s.chainID, err)
	}
	return nil
}

func (s *Session) setState(state ConnectionState, account common.Address) {
	s.mu.Lock()
	s.state = state
	s.account = account
	if state != Connected {
		s.signer = nil
	}
	update := Update{State: state, Account: account}
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, update)
}

// ensureListenerLocked installs the provider account-change listener exactly
// once per attached provider, no matter how many times Connect runs.
func (s *Session) ensureListenerLocked() {
	if s.listening {
		return
	}
	s.unlisten = s.provider.OnAccountsChanged(s.handleAccountsChanged)
	s.listening = true
}

func (s *Session) handleAccountsChanged(accounts []common.Address) {
	s.mu.Lock()
	var update Update
	if len(accounts) == 0 {
		s.account = common.Address{}
		s.signer = nil
		s.state = Disconnected
		update = Update{State: Disconnected}
	} else {
		signer, err := s.provider.Signer(accounts[0])
		if err != nil {
			s.account = common.Address{}
			s.signer = nil
			s.state = Disconnected
			update = Update{State: Disconnected}
		} else {
			s.account = accounts[0]
			s.signer = signer
			s.state = Connected
			update = Update{State: Connected, Account: accounts[0]}
		}
	}
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	notify(subs, update)
}

func (s *Session) snapshotSubsLocked() []func(Update) {
	out := make([]func(Update), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(Update), update Update) {
	for _, fn := range subs {
		fn(update)
	}
}
