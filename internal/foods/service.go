package foods

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Product sources.
const (
	SourceOpenFoodFacts = "openfoodfacts"
	SourceCustom        = "custom"
)

const (
	opServiceNew    = "foods.service.new"
	opLookup        = "foods.lookup"
	opCreateCustom  = "foods.create_custom"
	opSearch        = "foods.search"
	defaultLimit    = 20
	maxLimit        = 50
	maxNameLength   = 200
	maxPer100gValue = 900
)

// Product is a stored food, either cached from the food database or entered by a user.
type Product struct {
	ID             string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Barcode        string    `gorm:"column:barcode;size:14;index" json:"barcode,omitempty"`
	Source         string    `gorm:"column:source;size:16;not null" json:"source"`
	OwnerID        string    `gorm:"column:owner_id;size:64;index" json:"-"`
	Name           string    `gorm:"column:name;size:200;not null" json:"name"`
	Brand          string    `gorm:"column:brand;size:200" json:"brand,omitempty"`
	ImageURL       string    `gorm:"column:image_url;size:512" json:"image_url,omitempty"`
	KcalPer100g    float64   `gorm:"column:kcal_100g" json:"kcal_100g"`
	ProteinPer100g float64   `gorm:"column:protein_100g" json:"protein_100g"`
	LipidPer100g   float64   `gorm:"column:lipid_100g" json:"lipid_100g"`
	CarbsPer100g   float64   `gorm:"column:carbs_100g" json:"carbs_100g"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName exposes the table backing stored foods.
func (Product) TableName() string {
	return "food_products"
}

// Label returns the per-100g nutrition label of p.
func (p Product) Label() nutrition.Per100g {
	return nutrition.Per100g{Kcal: p.KcalPer100g, ProteinG: p.ProteinPer100g, LipidG: p.LipidPer100g, CarbsG: p.CarbsPer100g}
}

// CustomInput is a user-entered food.
type CustomInput struct {
	Name    string            `json:"name"`
	Brand   string            `json:"brand"`
	Barcode string            `json:"barcode"`
	Per100g nutrition.Per100g `json:"per_100g"`
}

// RemoteLookup fetches a product from the food database.
type RemoteLookup interface {
	Product(ctx context.Context, barcode string) (RemoteProduct, error)
}

// ServiceConfig describes the dependencies of the food service.
type ServiceConfig struct {
	Database   *gorm.DB
	Remote     RemoteLookup
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service resolves barcodes through the local table first and the food database second.
type Service struct {
	db         *gorm.DB
	remote     RemoteLookup
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errors.New("database handle is required"))
	}
	if cfg.Remote == nil {
		return nil, apperr.New(opServiceNew, "missing_remote", errors.New("remote lookup is required"))
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errors.New("id provider is required"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, remote: cfg.Remote, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// Lookup returns the product for barcode from the cache or userID's own foods,
// fetching and caching it from Open Food Facts on a local miss.
func (s *Service) Lookup(ctx context.Context, userID, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if !ValidBarcode(barcode) {
		return Product{}, apperr.Invalid(opLookup, "invalid_barcode", ErrInvalidBarcode)
	}

	var cached Product
	// "openfoodfacts" sorts after "custom", so a cached public product wins.
	err := s.db.WithContext(ctx).
		Where("barcode = ? AND (source = ? OR owner_id = ?)", barcode, SourceOpenFoodFacts, userID).
		Order("source DESC").
		Order("created_at DESC").
		Take(&cached).Error
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opLookup, "product_select_failed", err, zap.String("barcode", barcode))
		return Product{}, apperr.New(opLookup, "product_select_failed", err)
	}

	remote, err := s.remote.Product(ctx, barcode)
	switch {
	case errors.Is(err, ErrProductNotFound):
		return Product{}, apperr.NotFound(opLookup, "product_not_found", err)
	case errors.Is(err, ErrInvalidBarcode):
		return Product{}, apperr.Invalid(opLookup, "invalid_barcode", err)
	case err != nil:
		s.logError(opLookup, "upstream_failed", err, zap.String("barcode", barcode))
		return Product{}, apperr.New(opLookup, "upstream_failed", err)
	}
	if remote.Name == "" {
		return Product{}, apperr.NotFound(opLookup, "product_not_found", ErrProductNotFound)
	}

	now := s.clock().UTC()
	product := Product{
		ID:             remoteProductID(barcode),
		Barcode:        barcode,
		Source:         SourceOpenFoodFacts,
		Name:           remote.Name,
		Brand:          remote.Brand,
		ImageURL:       remote.ImageURL,
		KcalPer100g:    remote.KcalPer100g,
		ProteinPer100g: remote.ProteinPer100g,
		LipidPer100g:   remote.LipidPer100g,
		CarbsPer100g:   remote.CarbsPer100g,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&product).Error; err != nil {
		s.logger.Warn("caching food product failed", zap.String("barcode", barcode), zap.Error(err))
	}
	return product, nil
}

// CreateCustom stores a food entered by userID.
func (s *Service) CreateCustom(ctx context.Context, userID string, input CustomInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, apperr.Invalid(opCreateCustom, "missing_name", nil)
	}
	if len(name) > maxNameLength {
		return Product{}, apperr.Invalid(opCreateCustom, "name_too_long", nil)
	}
	barcode := strings.TrimSpace(input.Barcode)
	if barcode != "" && !ValidBarcode(barcode) {
		return Product{}, apperr.Invalid(opCreateCustom, "invalid_barcode", ErrInvalidBarcode)
	}
	label := input.Per100g
	for _, value := range []float64{label.Kcal, label.ProteinG, label.LipidG, label.CarbsG} {
		if value < 0 || value > maxPer100gValue {
			return Product{}, apperr.Invalid(opCreateCustom, "invalid_nutrients", nil)
		}
	}
	if label.ProteinG+label.LipidG+label.CarbsG > 100 {
		return Product{}, apperr.Invalid(opCreateCustom, "invalid_nutrients", nil)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateCustom, "id_generation_failed", err)
		return Product{}, apperr.New(opCreateCustom, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	product := Product{
		ID:             id,
		Barcode:        barcode,
		Source:         SourceCustom,
		OwnerID:        userID,
		Name:           name,
		Brand:          strings.TrimSpace(input.Brand),
		KcalPer100g:    label.Kcal,
		ProteinPer100g: label.ProteinG,
		LipidPer100g:   label.LipidG,
		CarbsPer100g:   label.CarbsG,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		s.logError(opCreateCustom, "product_insert_failed", err, zap.String("user_id", userID))
		return Product{}, apperr.New(opCreateCustom, "product_insert_failed", err)
	}
	return product, nil
}

// Search matches stored product names containing query. Custom foods are only visible to their owner.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Product, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return []Product{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	pattern := "%" + strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(term) + "%"
	var found []Product
	err := s.db.WithContext(ctx).
		Where("(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(brand) LIKE ? ESCAPE '!')", pattern, pattern).
		Where("(source = ? OR owner_id = ?)", SourceOpenFoodFacts, userID).
		Order("name ASC").Order("id ASC").
		Limit(limit).
		Find(&found).Error
	if err != nil {
		s.logError(opSearch, "product_select_failed", err)
		return nil, apperr.New(opSearch, "product_select_failed", err)
	}
	return found, nil
}

func remoteProductID(barcode string) string {
	return "off-" + barcode
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("foods service error", attrs...)
}
