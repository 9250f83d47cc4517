package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// KeystoreProvider serves the Provider surface from an Ethereum v3 keystore
// directory. Wallet files appearing or vanishing on disk play the role the
// extension's account-change events play in the original system.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string

	mu       sync.Mutex
	chainID  *big.Int
	subs     map[int]func([]common.Address)
	nextID   int
	watching bool
	sub      event.Subscription
	events   chan accounts.WalletEvent
	done     chan struct{}
}

// NewKeystoreProvider opens (or creates) the keystore directory at dir.
func NewKeystoreProvider(dir string, chainID *big.Int, passphrase string) *KeystoreProvider {
	return &KeystoreProvider{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		chainID:    new(big.Int).Set(chainID),
		subs:       make(map[int]func([]common.Address)),
	}
}

// RequestAccounts authorizes access by proving the passphrase unlocks the
// first keystore account. An empty keystore means there is no wallet to
// connect; a failed unlock is the rejection analog.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := p.ks.Accounts()
	if len(all) == 0 {
		return nil, ErrNoWallet
	}
	if err := p.ks.Unlock(all[0], p.passphrase); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	addrs := make([]common.Address, 0, len(all))
	for _, acct := range all {
		addrs = append(addrs, acct.Address)
	}
	return addrs, nil
}

// ChainID reports the chain this provider signs for.
func (p *KeystoreProvider) ChainID(ctx context.Context) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.chainID), nil
}

// SwitchChain retargets future signatures at another chain.
func (p *KeystoreProvider) SwitchChain(ctx context.Context, id *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == nil || id.Sign() <= 0 {
		return fmt.Errorf("wallet: invalid chain id %v", id)
	}
	p.mu.Lock()
	p.chainID = new(big.Int).Set(id)
	p.mu.Unlock()
	return nil
}

// Signer returns a signing capability for an account held in the keystore.
func (p *KeystoreProvider) Signer(account common.Address) (Signer, error) {
	acct := accounts.Account{Address: account}
	if !p.ks.HasAddress(account) {
		return nil, fmt.Errorf("wallet: account %s not in keystore", account.Hex())
	}
	return &keystoreSigner{ks: p.ks, account: acct, passphrase: p.passphrase}, nil
}

// OnAccountsChanged bridges keystore wallet events to account-change
// callbacks. The underlying keystore subscription starts on first use.
func (p *KeystoreProvider) OnAccountsChanged(fn func([]common.Address)) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.startWatchLocked()
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Close tears down the keystore event subscription and stops the watch
// goroutine. Unsubscribe alone leaves the goroutine blocked on receive, so
// the drained channel is closed as well.
func (p *KeystoreProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		p.sub.Unsubscribe()
		p.sub = nil
	}
	if p.events != nil {
		close(p.events)
		p.events = nil
	}
	p.watching = false
}

func (p *KeystoreProvider) startWatchLocked() {
	if p.watching {
		return
	}
	p.events = make(chan accounts.WalletEvent, 16)
	p.done = make(chan struct{})
	p.sub = p.ks.Subscribe(p.events)
	p.watching = true
	go p.watchLoop(p.events, p.done)
}

func (p *KeystoreProvider) watchLoop(events chan accounts.WalletEvent, done chan struct{}) {
	defer close(done)
	for range events {
		addrs := p.currentAddresses()
		p.mu.Lock()
		subs := make([]func([]common.Address), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
		p.mu.Unlock()
		for _, fn := range subs {
			fn(addrs)
		}
	}
}

func (p *KeystoreProvider) currentAddresses() []common.Address {
	all := p.ks.Accounts()
	addrs := make([]common.Address, 0, len(all))
	for _, acct := range all {
		addrs = append(addrs, acct.Address)
	}
	return addrs
}

type keystoreSigner struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase string
}

func (s *keystoreSigner) Address() common.Address {
	return s.account.Address
}

func (s *keystoreSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return s.ks.SignTxWithPassphrase(s.account, s.passphrase, tx, chainID)
}
