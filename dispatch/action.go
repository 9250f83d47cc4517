package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ErrWalletRequired is returned when an action is dispatched without a
// connected wallet. Callers prompt for connection and retry.
var ErrWalletRequired = errors.New("dispatch: wallet connection required")

// ErrActionNotFound is returned when an action id is unknown to the registry.
var ErrActionNotFound = errors.New("dispatch: action not found")

// ValidationError reports a bad input rejected before anything is signed
// or submitted.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: invalid %s: %s", e.Field, e.Msg)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

type ActionKind string

const (
	ActionListProperty   ActionKind = "list_property"
	ActionRentProperty   ActionKind = "rent_property"
	ActionReleaseDeposit ActionKind = "request_deposit_release"
	ActionWithdrawRent   ActionKind = "withdraw_rent"
)

// ActionStatus is the lifecycle of one dispatched action. Transitions only
// move forward.
type ActionStatus string

const (
	StatusIdle                 ActionStatus = "idle"
	StatusSubmitting           ActionStatus = "submitting"
	StatusAwaitingConfirmation ActionStatus = "awaiting_confirmation"
	StatusConfirmed            ActionStatus = "confirmed"
	StatusFailed               ActionStatus = "failed"
)

// PendingAction is the observable record of one dispatched transaction.
type PendingAction struct {
	ID        string         `json:"id"`
	Kind      ActionKind     `json:"kind"`
	Account   common.Address `json:"account"`
	TargetID  uint64         `json:"targetId,omitempty"`
	TxHash    common.Hash    `json:"txHash,omitempty"`
	Status    ActionStatus   `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// registry tracks in-flight and settled actions for status queries.
type registry struct {
	mu      sync.RWMutex
	actions map[string]*PendingAction
}

func newRegistry() *registry {
	return &registry{actions: make(map[string]*PendingAction)}
}

func (r *registry) create(kind ActionKind, account common.Address, targetID uint64) *PendingAction {
	now := time.Now().UTC()
	action := &PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Account:   account,
		TargetID:  targetID,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.actions[action.ID] = action
	r.mu.Unlock()
	return action
}

func (r *registry) transition(id string, status ActionStatus, mutate func(*PendingAction)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action, ok := r.actions[id]
	if !ok {
		return
	}
	action.Status = status
	action.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(action)
	}
}

func (r *registry) get(id string) (PendingAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[id]
	if !ok {
		return PendingAction{}, ErrActionNotFound
	}
	return *action, nil
}
