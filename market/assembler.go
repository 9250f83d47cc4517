package market

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rentchain/chain"
	"rentchain/metadata"
	"rentchain/observability/metrics"
)

// ErrPropertyNotFound is returned when a detail lookup names a property the
// listing contract has never assigned.
var ErrPropertyNotFound = errors.New("market: property not found")

// ChainReader is the slice of the chain adapter the assembler consumes.
type ChainReader interface {
	GetTotalProperties(ctx context.Context) (uint64, error)
	GetProperty(ctx context.Context, id uint64) (*chain.Property, error)
	GetOwnerProperties(ctx context.Context, owner common.Address) ([]uint64, error)
	GetActiveRentalID(ctx context.Context, propertyID uint64) (uint64, error)
	GetRentalDetails(ctx context.Context, rentalID uint64) (*chain.Rental, error)
	GetTenantRentals(ctx context.Context, tenant common.Address) ([]uint64, error)
	GetDepositBalance(ctx context.Context, rentalID uint64) (*big.Int, error)
	GetRentBalance(ctx context.Context, rentalID uint64) (*big.Int, error)
}

// MetadataFetcher resolves listing documents. A nil result means the
// document was unavailable; the assembler degrades to placeholders.
type MetadataFetcher interface {
	Fetch(ctx context.Context, hash string) *metadata.Metadata
}

// Assembler composes screen-ready views from chain records and listing
// metadata. Reads within one assembly may land on slightly different block
// heights; the views tolerate that.
type Assembler struct {
	reader ChainReader
	docs   MetadataFetcher
	log    *slog.Logger
	stats  *metrics.MarketMetrics
	rented *rentedOverlay
}

func NewAssembler(reader ChainReader, docs MetadataFetcher, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		reader: reader,
		docs:   docs,
		log:    logger.With("component", "market"),
		stats:  metrics.Market(),
		rented: newRentedOverlay(),
	}
}

// MarkRented records an optimistic availability flip after a rent
// transaction confirms. The next authoritative read clears it.
func (a *Assembler) MarkRented(propertyID uint64) {
	a.rented.mark(propertyID)
}

// Listings assembles every listed property in ascending id order. Records
// that fail to load or are no longer listed are dropped, never surfaced as
// errors.
func (a *Assembler) Listings(ctx context.Context) ([]PropertyView, error) {
	started := time.Now()
	total, err := a.reader.GetTotalProperties(ctx)
	if err != nil {
		return nil, err
	}
	settled := gatherAll(ctx, int(total), func(ctx context.Context, i int) (*PropertyView, error) {
		return a.assembleCard(ctx, uint64(i)+1)
	})
	views := make([]PropertyView, 0, len(settled))
	dropped := 0
	for i, res := range settled {
		if res.err != nil {
			dropped++
			a.log.Warn("listing dropped", "property_id", i+1, "error", res.err)
			continue
		}
		if res.value == nil {
			continue // unlisted
		}
		views = append(views, *res.value)
	}
	a.stats.ObserveView("listings", dropped, time.Since(started))
	return views, nil
}

// PropertyDetail assembles one property page. A zero or unassigned id is
// reported as ErrPropertyNotFound rather than an empty view.
func (a *Assembler) PropertyDetail(ctx context.Context, id uint64) (*PropertyView, error) {
	if id == 0 {
		return nil, ErrPropertyNotFound
	}
	started := time.Now()
	prop, err := a.reader.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prop.Exists() {
		return nil, ErrPropertyNotFound
	}
	view, err := a.viewOf(ctx, prop)
	if err != nil {
		return nil, err
	}
	a.stats.ObserveView("property_detail", 0, time.Since(started))
	return view, nil
}

// OwnerProperties assembles the landlord dashboard, including the rent each
// property has accrued in escrow.
func (a *Assembler) OwnerProperties(ctx context.Context, owner common.Address) ([]OwnedPropertyView, error) {
	started := time.Now()
	ids, err := a.reader.GetOwnerProperties(ctx, owner)
	if err != nil {
		return nil, err
	}
	settled := gatherAll(ctx, len(ids), func(ctx context.Context, i int) (*OwnedPropertyView, error) {
		prop, err := a.reader.GetProperty(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		if !prop.Exists() {
			return nil, nil
		}
		view, err := a.viewOf(ctx, prop)
		if err != nil {
			return nil, err
		}
		owned := &OwnedPropertyView{
			PropertyView:   *view,
			RentBalanceWei: new(big.Int),
			RentBalanceEth: "0",
		}
		if view.ActiveRentalID != 0 {
			balance, err := a.reader.GetRentBalance(ctx, view.ActiveRentalID)
			if err != nil {
				return nil, err
			}
			owned.RentBalanceWei = balance
			owned.RentBalanceEth = formatEth(balance)
		}
		return owned, nil
	})
	views := make([]OwnedPropertyView, 0, len(settled))
	dropped := 0
	for i, res := range settled {
		if res.err != nil {
			dropped++
			a.log.Warn("owned property dropped", "property_id", ids[i], "error", res.err)
			continue
		}
		if res.value != nil {
			views = append(views, *res.value)
		}
	}
	a.stats.ObserveView("owner_properties", dropped, time.Since(started))
	return views, nil
}

// TenantRentals assembles the tenant dashboard. Ended rentals and rentals
// whose tenant no longer matches the account are filtered out.
func (a *Assembler) TenantRentals(ctx context.Context, tenant common.Address) ([]RentalView, error) {
	started := time.Now()
	ids, err := a.reader.GetTenantRentals(ctx, tenant)
	if err != nil {
		return nil, err
	}
	settled := gatherAll(ctx, len(ids), func(ctx context.Context, i int) (*RentalView, error) {
		return a.assembleRental(ctx, ids[i], tenant)
	})
	views := make([]RentalView, 0, len(settled))
	dropped := 0
	for i, res := range settled {
		if res.err != nil {
			dropped++
			a.log.Warn("rental dropped", "rental_id", ids[i], "error", res.err)
			continue
		}
		if res.value != nil {
			views = append(views, *res.value)
		}
	}
	a.stats.ObserveView("tenant_rentals", dropped, time.Since(started))
	return views, nil
}

// assembleCard loads one listing card. A nil view with a nil error means
// the property exists but is not listed.
func (a *Assembler) assembleCard(ctx context.Context, id uint64) (*PropertyView, error) {
	prop, err := a.reader.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prop.Exists() || !prop.Listed {
		return nil, nil
	}
	return a.viewOf(ctx, prop)
}

func (a *Assembler) viewOf(ctx context.Context, prop *chain.Property) (*PropertyView, error) {
	doc := a.docs.Fetch(ctx, prop.MetadataHash)
	if doc == nil && prop.MetadataHash != "" {
		a.stats.ObserveMetadataMiss()
	}
	rentalID, err := a.reader.GetActiveRentalID(ctx, prop.ID.Uint64())
	if err != nil {
		return nil, err
	}
	view := newPropertyView(prop, doc, rentalID)
	view.Available = a.rented.resolve(view.ID, view.Available)
	return &view, nil
}

func (a *Assembler) assembleRental(ctx context.Context, rentalID uint64, tenant common.Address) (*RentalView, error) {
	rental, err := a.reader.GetRentalDetails(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rental.State == chain.RentalEnded || rental.Tenant != tenant {
		return nil, nil
	}
	prop, err := a.reader.GetProperty(ctx, rental.PropertyID.Uint64())
	if err != nil {
		return nil, err
	}
	doc := a.docs.Fetch(ctx, prop.MetadataHash)
	balance, err := a.reader.GetDepositBalance(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	view := &RentalView{
		RentalID:          rentalID,
		PropertyID:        rental.PropertyID.Uint64(),
		Title:             placeholderTitle,
		Location:          prop.Location,
		ImageURL:          placeholderImage,
		Landlord:          rental.Landlord,
		MonthlyRentWei:    rental.MonthlyRent,
		MonthlyRentEth:    formatEth(rental.MonthlyRent),
		DepositWei:        rental.SecurityDeposit,
		DepositEth:        formatEth(rental.SecurityDeposit),
		Start:             rental.Start,
		End:               rental.End,
		PaidUntil:         rental.PaidUntil,
		State:             rental.State,
		DepositStatus:     depositStatusOf(balance, rental.DepositReleaseRequested),
		DepositBalanceWei: balance,
	}
	if doc != nil {
		if doc.Title != "" {
			view.Title = doc.Title
		}
		if images := doc.Images(); len(images) > 0 {
			view.ImageURL = images[0]
		}
	}
	return view, nil
}
