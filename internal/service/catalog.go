package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boutique/backend/internal/domain"
)

// ErrNoSession is returned by workflows that must be attributed to an
// employee and store.
var ErrNoSession = errors.New("employee session required")

func (s *Service) ListProducts(ctx context.Context, storeRaw string, search string) ([]domain.ProductWithColors, error) {
	filter := domain.ProductFilter{Search: strings.TrimSpace(search)}
	if strings.TrimSpace(storeRaw) != "" {
		storeID, err := domain.ParseStore(storeRaw)
		if err != nil {
			return nil, err
		}
		filter.Store = storeID
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.ProductWithColors, error) {
	if id < 1 {
		return domain.ProductWithColors{}, domain.NewValidationError("id", "product id is required")
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductWithColors{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.ProductWithColors, error) {
	if _, err := requireSession(ctx); err != nil {
		return domain.ProductWithColors{}, err
	}

	product := domain.Product{
		ModelNumber:    strings.ToUpper(strings.TrimSpace(req.ModelNumber)),
		Brand:          strings.TrimSpace(req.Brand),
		ProductType:    strings.TrimSpace(req.ProductType),
		BoutiquePrice:  req.BoutiquePrice.Round(2),
		OnlinePrice:    req.OnlinePrice.Round(2),
		Specifications: strings.TrimSpace(req.Specifications),
		ImageURL:       strings.TrimSpace(req.ImageURL),
	}
	if err := validateProduct(product); err != nil {
		return domain.ProductWithColors{}, err
	}

	colors := make([]string, 0, len(req.Colors))
	seen := make(map[string]struct{}, len(req.Colors))
	for _, raw := range req.Colors {
		color := strings.TrimSpace(raw)
		if color == "" {
			continue
		}
		if _, dup := seen[strings.ToLower(color)]; dup {
			continue
		}
		seen[strings.ToLower(color)] = struct{}{}
		colors = append(colors, color)
	}

	created, err := s.repo.CreateProduct(ctx, product, colors)
	if err != nil {
		return domain.ProductWithColors{}, err
	}
	s.logger.Info("product created", zap.Int64("product_id", created.ID), zap.String("model_number", created.ModelNumber))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireSession(ctx); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := existing.Product
	if req.ModelNumber != nil {
		updated.ModelNumber = strings.ToUpper(strings.TrimSpace(*req.ModelNumber))
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.ProductType != nil {
		updated.ProductType = strings.TrimSpace(*req.ProductType)
	}
	if req.BoutiquePrice != nil {
		updated.BoutiquePrice = req.BoutiquePrice.Round(2)
	}
	if req.OnlinePrice != nil {
		updated.OnlinePrice = req.OnlinePrice.Round(2)
	}
	if req.Specifications != nil {
		updated.Specifications = strings.TrimSpace(*req.Specifications)
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	product, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// DeleteProduct removes a product with its colors and stock rows. Products
// with recorded transactions are kept.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	if id < 1 {
		return domain.NewValidationError("id", "product id is required")
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

// AddColor is idempotent: adding an existing color returns that variant.
func (s *Service) AddColor(ctx context.Context, productID int64, req domain.ColorCreateRequest) (domain.ColorVariant, bool, error) {
	if _, err := requireSession(ctx); err != nil {
		return domain.ColorVariant{}, false, err
	}
	if productID < 1 {
		return domain.ColorVariant{}, false, domain.NewValidationError("id", "product id is required")
	}
	color := strings.TrimSpace(req.ColorName)
	if color == "" {
		return domain.ColorVariant{}, false, domain.NewValidationError("color_name", "color_name is required")
	}
	variant, created, err := s.repo.CreateColor(ctx, productID, color)
	if err != nil {
		return domain.ColorVariant{}, false, err
	}
	return *variant, created, nil
}

func (s *Service) DeleteColor(ctx context.Context, variantID int64) error {
	if _, err := requireSession(ctx); err != nil {
		return err
	}
	if variantID < 1 {
		return domain.NewValidationError("id", "color id is required")
	}
	if err := s.repo.DeleteColor(ctx, variantID); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

func (s *Service) invalidateAll(ctx context.Context) {
	for _, storeID := range domain.Stores {
		s.dashboard.Invalidate(ctx, storeID)
	}
}

func validateProduct(p domain.Product) error {
	switch {
	case p.ModelNumber == "":
		return domain.NewValidationError("model_number", "model_number is required")
	case p.Brand == "":
		return domain.NewValidationError("brand", "brand is required")
	case p.ProductType == "":
		return domain.NewValidationError("product_type", "product_type is required")
	case !p.BoutiquePrice.GreaterThan(decimal.Zero):
		return domain.NewValidationError("boutique_price", "boutique_price must be greater than zero")
	case !p.OnlinePrice.GreaterThan(decimal.Zero):
		return domain.NewValidationError("online_price", "online_price must be greater than zero")
	}
	return nil
}
