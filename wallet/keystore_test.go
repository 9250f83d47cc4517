package wallet

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestKeystoreCloseStopsWatchLoop(t *testing.T) {
	provider := NewKeystoreProvider(t.TempDir(), big.NewInt(1337), "passphrase")
	remove := provider.OnAccountsChanged(func([]common.Address) {})
	defer remove()

	provider.mu.Lock()
	done := provider.done
	provider.mu.Unlock()
	if done == nil {
		t.Fatal("subscription should start the watch loop")
	}

	provider.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop still running after Close")
	}
}

func TestKeystoreCloseIdempotent(t *testing.T) {
	provider := NewKeystoreProvider(t.TempDir(), big.NewInt(1337), "passphrase")
	remove := provider.OnAccountsChanged(func([]common.Address) {})
	defer remove()

	provider.Close()
	provider.Close()
}
