package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"rentchain/amount"
	"rentchain/chain"
	"rentchain/metadata"
)

const (
	placeholderTitle = "Untitled Property"
	placeholderImage = "/placeholder.svg"
)

func formatEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return amount.FormatEther(wei)
}

// DepositStatus is the tenant-facing projection of a rental's security
// deposit. A drained escrow balance always wins over the release flag.
type DepositStatus string

const (
	DepositHeld             DepositStatus = "held"
	DepositReleaseRequested DepositStatus = "release_requested"
	DepositReleased         DepositStatus = "released"
)

func depositStatusOf(balance *big.Int, releaseRequested bool) DepositStatus {
	if balance == nil || balance.Sign() == 0 {
		return DepositReleased
	}
	if releaseRequested {
		return DepositReleaseRequested
	}
	return DepositHeld
}

// PropertyView is one marketplace card. Chain fields are authoritative;
// metadata fields fall back to placeholders when the document is missing.
type PropertyView struct {
	ID              uint64         `json:"id"`
	Owner           common.Address `json:"owner"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Location        string         `json:"location"`
	ImageURL        string         `json:"imageUrl"`
	Images          []string       `json:"images,omitempty"`
	Amenities       []string       `json:"amenities,omitempty"`
	PriceWei        *big.Int       `json:"priceWei"`
	PriceEth        string         `json:"priceEth"`
	DepositWei      *big.Int       `json:"depositWei"`
	DepositEth      string         `json:"depositEth"`
	Bedrooms        uint64         `json:"bedrooms"`
	Bathrooms       uint64         `json:"bathrooms"`
	AreaSqMeters    uint64         `json:"areaSqMeters"`
	AvailableFrom   int64          `json:"availableFrom"`
	MinRentalMonths uint64         `json:"minRentalMonths"`
	Available       bool           `json:"available"`
	ActiveRentalID  uint64         `json:"activeRentalId,omitempty"`
	MetadataHash    string         `json:"metadataHash,omitempty"`
}

// OwnedPropertyView extends the card with the landlord's withdrawable rent.
type OwnedPropertyView struct {
	PropertyView
	RentBalanceWei *big.Int `json:"rentBalanceWei"`
	RentBalanceEth string   `json:"rentBalanceEth"`
}

// RentalView is one row on the tenant's rentals screen.
type RentalView struct {
	RentalID          uint64            `json:"rentalId"`
	PropertyID        uint64            `json:"propertyId"`
	Title             string            `json:"title"`
	Location          string            `json:"location"`
	ImageURL          string            `json:"imageUrl"`
	Landlord          common.Address    `json:"landlord"`
	MonthlyRentWei    *big.Int          `json:"monthlyRentWei"`
	MonthlyRentEth    string            `json:"monthlyRentEth"`
	DepositWei        *big.Int          `json:"depositWei"`
	DepositEth        string            `json:"depositEth"`
	Start             int64             `json:"start"`
	End               int64             `json:"end"`
	PaidUntil         int64             `json:"paidUntil"`
	State             chain.RentalState `json:"state"`
	DepositStatus     DepositStatus     `json:"depositStatus"`
	DepositBalanceWei *big.Int          `json:"depositBalanceWei"`
}

// newPropertyView merges a chain record with its metadata document. Chain
// wins on location and amounts, metadata supplies the descriptive fields.
func newPropertyView(prop *chain.Property, doc *metadata.Metadata, activeRentalID uint64) PropertyView {
	view := PropertyView{
		ID:              prop.ID.Uint64(),
		Owner:           prop.Owner,
		Title:           placeholderTitle,
		Location:        prop.Location,
		ImageURL:        placeholderImage,
		PriceWei:        prop.PricePerMonth,
		PriceEth:        formatEth(prop.PricePerMonth),
		DepositWei:      prop.SecurityDeposit,
		DepositEth:      formatEth(prop.SecurityDeposit),
		Bedrooms:        prop.Bedrooms,
		Bathrooms:       prop.Bathrooms,
		AreaSqMeters:    prop.AreaSqMeters,
		AvailableFrom:   prop.AvailableFrom,
		MinRentalMonths: prop.MinRentalMonths,
		Available:       activeRentalID == 0,
		ActiveRentalID:  activeRentalID,
		MetadataHash:    prop.MetadataHash,
	}
	if doc == nil {
		return view
	}
	if doc.Title != "" {
		view.Title = doc.Title
	}
	view.Description = doc.Description
	view.Amenities = doc.Amenities
	if images := doc.Images(); len(images) > 0 {
		view.ImageURL = images[0]
		view.Images = images
	}
	return view
}
