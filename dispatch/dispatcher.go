package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rentchain/amount"
	"rentchain/chain"
	"rentchain/metadata"
	"rentchain/observability/metrics"
	"rentchain/wallet"
)

// ErrOwnProperty is returned when an account tries to rent a property it
// owns. The contract would revert anyway; rejecting here saves the gas
// estimate round trip.
var ErrOwnProperty = errors.New("dispatch: cannot rent own property")

// WalletSession is the slice of the wallet session the dispatcher needs.
type WalletSession interface {
	Account() (common.Address, bool)
	Signer() wallet.Signer
}

// TxWriter submits marketplace transactions and waits on their receipts.
type TxWriter interface {
	ListProperty(ctx context.Context, signer wallet.Signer, params chain.ListingParams) (common.Hash, error)
	RentProperty(ctx context.Context, signer wallet.Signer, propertyID uint64, value *big.Int) (common.Hash, error)
	RequestDepositRelease(ctx context.Context, signer wallet.Signer, rentalID uint64) (common.Hash, error)
	WithdrawRent(ctx context.Context, signer wallet.Signer, rentalID uint64) (common.Hash, error)
	WaitConfirmed(ctx context.Context, hash common.Hash) error
}

// PropertyReader supplies the pre-flight reads for the rent action.
type PropertyReader interface {
	GetProperty(ctx context.Context, id uint64) (*chain.Property, error)
	GetActiveRentalID(ctx context.Context, propertyID uint64) (uint64, error)
}

// ListingPinner pins the listing image and document before the on-chain
// call is built.
type ListingPinner interface {
	PinListing(ctx context.Context, imageName string, image io.Reader, doc metadata.Metadata) (*metadata.PinResult, error)
}

// RentedMarker receives the optimistic availability flip once a rent
// transaction confirms.
type RentedMarker interface {
	MarkRented(propertyID uint64)
}

// ListingInput is the listing form. Amounts arrive as decimal ether
// strings and are validated before anything is pinned or signed.
type ListingInput struct {
	Title           string
	Description     string
	Location        string
	PriceEth        string
	DepositEth      string
	Bedrooms        uint64
	Bathrooms       uint64
	AreaSqMeters    uint64
	AvailableFrom   int64
	MinRentalMonths uint64
	Amenities       []string
	ImageName       string
	Image           io.Reader
}

// Dispatcher validates user actions, runs their off-chain prerequisites,
// submits the transaction and tracks it to confirmation. Confirmation is
// awaited in the background; subscribers observe every status change.
type Dispatcher struct {
	session WalletSession
	writer  TxWriter
	reader  PropertyReader
	pinner  ListingPinner
	marker  RentedMarker
	log     *slog.Logger
	stats   *metrics.MarketMetrics
	reg     *registry
	confirm time.Duration

	mu      sync.Mutex
	nextSub int
	subs    map[int]func(PendingAction)
	wg      sync.WaitGroup
}

func NewDispatcher(session WalletSession, writer TxWriter, reader PropertyReader, pinner ListingPinner, marker RentedMarker, confirm time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		session: session,
		writer:  writer,
		reader:  reader,
		pinner:  pinner,
		marker:  marker,
		log:     logger.With("component", "dispatch"),
		stats:   metrics.Market(),
		reg:     newRegistry(),
		confirm: confirm,
		subs:    make(map[int]func(PendingAction)),
	}
}

// Subscribe registers a status observer. The returned func removes it.
func (d *Dispatcher) Subscribe(fn func(PendingAction)) (cancel func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

// Action returns the current snapshot of a dispatched action.
func (d *Dispatcher) Action(id string) (PendingAction, error) {
	return d.reg.get(id)
}

// Flush blocks until every background confirmation wait has settled.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

// ListProperty pins the image and metadata document, then submits the
// listing transaction.
func (d *Dispatcher) ListProperty(ctx context.Context, input ListingInput) (PendingAction, error) {
	account, signer, err := d.requireWallet()
	if err != nil {
		return PendingAction{}, err
	}
	if strings.TrimSpace(input.Location) == "" {
		return PendingAction{}, invalid("location", "must not be empty")
	}
	price, err := amount.ParseEther(input.PriceEth)
	if err != nil {
		return PendingAction{}, invalid("price", err.Error())
	}
	deposit, err := amount.ParseEther(input.DepositEth)
	if err != nil {
		return PendingAction{}, invalid("deposit", err.Error())
	}
	if input.Image == nil || strings.TrimSpace(input.ImageName) == "" {
		return PendingAction{}, invalid("image", "listing photo is required")
	}

	action := d.reg.create(ActionListProperty, account, 0)
	pinned, err := d.pinner.PinListing(ctx, input.ImageName, input.Image, metadata.Metadata{
		Title:       input.Title,
		Description: input.Description,
		Bedrooms:    int(input.Bedrooms),
		Bathrooms:   int(input.Bathrooms),
		Area:        int(input.AreaSqMeters),
		Amenities:   input.Amenities,
	})
	if err != nil {
		return d.fail(action, err), err
	}

	return d.submit(ctx, action, func(ctx context.Context) (common.Hash, error) {
		return d.writer.ListProperty(ctx, signer, chain.ListingParams{
			Location:        strings.TrimSpace(input.Location),
			PricePerMonth:   price,
			SecurityDeposit: deposit,
			Bedrooms:        input.Bedrooms,
			Bathrooms:       input.Bathrooms,
			AreaSqMeters:    input.AreaSqMeters,
			AvailableFrom:   input.AvailableFrom,
			MinRentalMonths: input.MinRentalMonths,
			MetadataHash:    pinned.MetadataHash,
		})
	}, nil)
}

// RentProperty submits a rental for the property, attaching the first
// month's rent plus the security deposit as value.
func (d *Dispatcher) RentProperty(ctx context.Context, propertyID uint64) (PendingAction, error) {
	account, signer, err := d.requireWallet()
	if err != nil {
		return PendingAction{}, err
	}
	if propertyID == 0 {
		return PendingAction{}, invalid("propertyId", "must be positive")
	}
	prop, err := d.reader.GetProperty(ctx, propertyID)
	if err != nil {
		return PendingAction{}, err
	}
	if !prop.Exists() || !prop.Listed {
		return PendingAction{}, invalid("propertyId", "property is not listed")
	}
	if prop.Owner == account {
		return PendingAction{}, ErrOwnProperty
	}
	if rentalID, err := d.reader.GetActiveRentalID(ctx, propertyID); err == nil && rentalID != 0 {
		return PendingAction{}, invalid("propertyId", "property is already rented")
	}

	value := new(big.Int).Add(prop.PricePerMonth, prop.SecurityDeposit)
	action := d.reg.create(ActionRentProperty, account, propertyID)
	return d.submit(ctx, action, func(ctx context.Context) (common.Hash, error) {
		return d.writer.RentProperty(ctx, signer, propertyID, value)
	}, func() {
		if d.marker != nil {
			d.marker.MarkRented(propertyID)
		}
	})
}

// RequestDepositRelease flags the tenant's deposit for release.
func (d *Dispatcher) RequestDepositRelease(ctx context.Context, rentalID uint64) (PendingAction, error) {
	account, signer, err := d.requireWallet()
	if err != nil {
		return PendingAction{}, err
	}
	if rentalID == 0 {
		return PendingAction{}, invalid("rentalId", "must be positive")
	}
	action := d.reg.create(ActionReleaseDeposit, account, rentalID)
	return d.submit(ctx, action, func(ctx context.Context) (common.Hash, error) {
		return d.writer.RequestDepositRelease(ctx, signer, rentalID)
	}, nil)
}

// WithdrawRent pulls the landlord's accrued rent out of escrow.
func (d *Dispatcher) WithdrawRent(ctx context.Context, rentalID uint64) (PendingAction, error) {
	account, signer, err := d.requireWallet()
	if err != nil {
		return PendingAction{}, err
	}
	if rentalID == 0 {
		return PendingAction{}, invalid("rentalId", "must be positive")
	}
	action := d.reg.create(ActionWithdrawRent, account, rentalID)
	return d.submit(ctx, action, func(ctx context.Context) (common.Hash, error) {
		return d.writer.WithdrawRent(ctx, signer, rentalID)
	}, nil)
}

func (d *Dispatcher) requireWallet() (common.Address, wallet.Signer, error) {
	account, ok := d.session.Account()
	if !ok {
		return common.Address{}, nil, ErrWalletRequired
	}
	signer := d.session.Signer()
	if signer == nil {
		return common.Address{}, nil, ErrWalletRequired
	}
	return account, signer, nil
}

// submit runs the transaction send, then waits for confirmation in the
// background. The returned snapshot is taken right after submission.
func (d *Dispatcher) submit(ctx context.Context, action *PendingAction, send func(context.Context) (common.Hash, error), onConfirmed func()) (PendingAction, error) {
	d.transition(action.ID, StatusSubmitting, nil)
	hash, err := send(ctx)
	if err != nil {
		return d.fail(action, err), err
	}
	d.transition(action.ID, StatusAwaitingConfirmation, func(a *PendingAction) {
		a.TxHash = hash
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		waitCtx, cancel := context.WithTimeout(context.Background(), d.confirm)
		defer cancel()
		if err := d.writer.WaitConfirmed(waitCtx, hash); err != nil {
			d.log.Warn("action failed", "action_id", action.ID, "kind", action.Kind, "tx", hash, "error", err)
			d.transition(action.ID, StatusFailed, func(a *PendingAction) {
				a.Error = err.Error()
			})
			d.stats.ObserveAction(string(action.Kind), string(StatusFailed))
			return
		}
		d.transition(action.ID, StatusConfirmed, nil)
		d.stats.ObserveAction(string(action.Kind), string(StatusConfirmed))
		if onConfirmed != nil {
			onConfirmed()
		}
		d.log.Info("action confirmed", "action_id", action.ID, "kind", action.Kind, "tx", hash)
	}()

	return d.snapshot(action.ID), nil
}

func (d *Dispatcher) fail(action *PendingAction, err error) PendingAction {
	d.transition(action.ID, StatusFailed, func(a *PendingAction) {
		a.Error = err.Error()
	})
	d.stats.ObserveAction(string(action.Kind), string(StatusFailed))
	return d.snapshot(action.ID)
}

func (d *Dispatcher) transition(id string, status ActionStatus, mutate func(*PendingAction)) {
	d.reg.transition(id, status, mutate)
	d.notify(d.snapshot(id))
}

func (d *Dispatcher) snapshot(id string) PendingAction {
	action, _ := d.reg.get(id)
	return action
}

func (d *Dispatcher) notify(action PendingAction) {
	d.mu.Lock()
	fns := make([]func(PendingAction), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(action)
	}
}
