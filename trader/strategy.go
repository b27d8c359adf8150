package trader

import (
	"github.com/stellar/kelp/api"
	"github.com/stellar/kelp/model"
)

// PassthroughStrategy is a minimal api.Strategy that places no orders and prunes nothing; it exists
// so the bot loop has a concrete, always-safe default to drive while exercising the balance lookups
// on every tick, and as a template for a real strategy implementation.
type PassthroughStrategy struct {
	fillHandlers []api.FillHandler
}

// ensure PassthroughStrategy implements api.Strategy
var _ api.Strategy = &PassthroughStrategy{}

// MakePassthroughStrategy is a factory method.
func MakePassthroughStrategy(fillHandlers []api.FillHandler) *PassthroughStrategy {
	return &PassthroughStrategy{fillHandlers: fillHandlers}
}

// PruneExistingOffers impl.
func (s *PassthroughStrategy) PruneExistingOffers(buyingOffers []model.OpenOrder, sellingOffers []model.OpenOrder) ([]model.Order, []model.OpenOrder, []model.OpenOrder) {
	return []model.Order{}, buyingOffers, sellingOffers
}

// PreUpdate impl.
func (s *PassthroughStrategy) PreUpdate(maxAssetBase float64, maxAssetQuote float64) error {
	return nil
}

// UpdateWithOps impl.
func (s *PassthroughStrategy) UpdateWithOps(buyingOffers []model.OpenOrder, sellingOffers []model.OpenOrder) ([]model.Order, error) {
	return []model.Order{}, nil
}

// PostUpdate impl.
func (s *PassthroughStrategy) PostUpdate() error {
	return nil
}

// GetFillHandlers impl.
func (s *PassthroughStrategy) GetFillHandlers() ([]api.FillHandler, error) {
	return s.fillHandlers, nil
}
