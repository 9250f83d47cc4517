package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeSigner struct {
	addr common.Address
}

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return tx, nil
}

type fakeProvider struct {
	accounts    []common.Address
	requestErr  error
	chainID     *big.Int
	switchErr   error
	switchedTo  *big.Int
	listeners   []func([]common.Address)
	attachCount int
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.accounts, nil
}

func (f *fakeProvider) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainID == nil {
		return big.NewInt(1337), nil
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeProvider) SwitchChain(ctx context.Context, id *big.Int) error {
	if f.switchErr != nil {
		return f.switchErr
	}
	f.switchedTo = new(big.Int).Set(id)
	f.chainID = new(big.Int).Set(id)
	return nil
}

func (f *fakeProvider) Signer(account common.Address) (Signer, error) {
	return &fakeSigner{addr: account}, nil
}

func (f *fakeProvider) OnAccountsChanged(fn func([]common.Address)) func() {
	f.attachCount++
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	return func() {
		f.listeners[idx] = nil
	}
}

func (f *fakeProvider) fire(accounts []common.Address) {
	for _, fn := range f.listeners {
		if fn != nil {
			fn(accounts)
		}
	}
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestConnectBindsFirstAccount(t *testing.T) {
	provider := &fakeProvider{accounts: []common.Address{addr(1), addr(2)}}
	session := NewSession(provider, big.NewInt(1337))

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	account, ok := session.Account()
	if !ok || account != addr(1) {
		t.Fatalf("Account = %s ok=%v, want %s", account.Hex(), ok, addr(1).Hex())
	}
	if session.Signer() == nil {
		t.Fatal("expected signer after connect")
	}
	if session.State() != Connected {
		t.Fatalf("State = %v, want Connected", session.State())
	}
}

func TestConnectNoProvider(t *testing.T) {
	session := NewSession(nil, nil)
	if err := session.Connect(context.Background()); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("Connect error = %v, want ErrNoWallet", err)
	}
}

func TestConnectRejected(t *testing.T) {
	provider := &fakeProvider{requestErr: ErrUserRejected}
	session := NewSession(provider, big.NewInt(1337))
	if err := session.Connect(context.Background()); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("Connect error = %v, want ErrUserRejected", err)
	}
	if session.IsConnected() {
		t.Fatal("session must stay disconnected after rejection")
	}
}

func TestConnectEmptyAccounts(t *testing.T) {
	provider := &fakeProvider{}
	session := NewSession(provider, big.NewInt(1337))
	if err := session.Connect(context.Background()); !errors.Is(err, ErrUserRejected) {
		t.Fatalf("Connect error = %v, want ErrUserRejected", err)
	}
}

func TestListenerAttachedOncePerSession(t *testing.T) {
	provider := &fakeProvider{accounts: []common.Address{addr(1)}}
	session := NewSession(provider, big.NewInt(1337))
	for i := 0; i < 3; i++ {
		if err := session.Connect(context.Background()); err != nil {
			t.Fatalf("Connect #%d: %v", i, err)
		}
	}
	if provider.attachCount != 1 {
		t.Fatalf("listener attached %d times, want 1", provider.attachCount)
	}
}

func TestAccountsClearedDisconnects(t *testing.T) {
	provider := &fakeProvider{accounts: []common.Address{addr(1)}}
	session := NewSession(provider, big.NewInt(1337))
	if err := session.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var updates []Update
	session.Subscribe(func(u Update) { updates = append(updates, u) })

	provider.fire(nil)

	if session.IsConnected() {
		t.Fatal("session should disconnect when accounts are cleared")
	}
	if session.Signer() != nil {
		t.Fatal("signer must be nil after disconnect")
	}
	if len(updates) != 1 || updates[0].State != Disconnected {
		t.Fatalf("updates = %+v, want one Disconnected update", updates)
	}
}

func TestAccountSwitchNotifiesSubscribers(t *testing.T) {
	provider := &fakeProvider{accounts: []common.Address{addr(1)}}
	session := NewSession(provider, big.NewInt(1337))
	if err := session.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	var last Update
	cancel := session.Subscribe(func(u Update) { last = u })
	provider.fire([]common.Address{addr(9)})

	if last.State != Connected || last.Account != addr(9) {
		t.Fatalf("update = %+v, want Connected/%s", last, addr(9).Hex())
	}
	account, _ := session.Account()
	if account != addr(9) {
		t.Fatalf("Account = %s, want %s", account.Hex(), addr(9).Hex())
	}

	cancel()
	provider.fire([]common.Address{addr(3)})
	if last.Account != addr(9) {
		t.Fatal("cancelled subscriber must not receive updates")
	}
}

func TestDisconnectDetachesListener(t *testing.T) {
	provider := &fakeProvider{accounts: []common.Address{addr(1)}}
	session := NewSession(provider, big.NewInt(1337))
	if err := session.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	session.Disconnect()
	if session.State() != Disconnected {
		t.Fatalf("State = %v, want Disconnected", session.State())
	}
	// Reconnect must attach a fresh listener, not stack a second live one.
	if err := session.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	live := 0
	for _, fn := range provider.listeners {
		if fn != nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live listeners = %d, want 1", live)
	}
}

func TestConnectSwitchesWrongChain(t *testing.T) {
	provider := &fakeProvider{
		accounts: []common.Address{addr(1)},
		chainID:  big.NewInt(5),
	}
	session := NewSession(provider, big.NewInt(1337))

	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if provider.switchedTo == nil || provider.switchedTo.Int64() != 1337 {
		t.Fatalf("switched to %v, want 1337", provider.switchedTo)
	}
	if !session.IsConnected() {
		t.Fatal("session should connect after the chain switch")
	}
}

func TestConnectWrongChainSwitchRefused(t *testing.T) {
	provider := &fakeProvider{
		accounts:  []common.Address{addr(1)},
		chainID:   big.NewInt(5),
		switchErr: errors.New("backend refused"),
	}
	session := NewSession(provider, big.NewInt(1337))

	if err := session.Connect(context.Background()); !errors.Is(err, ErrWrongChain) {
		t.Fatalf("Connect error = %v, want ErrWrongChain", err)
	}
	if session.State() != Disconnected {
		t.Fatalf("State = %v, want Disconnected", session.State())
	}
	if session.Signer() != nil {
		t.Fatal("signer must be nil on a wrong-chain failure")
	}
}
