package foods

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const nutellaDocument = `{
  "code": "3017620422003",
  "status": 1,
  "product": {
    "product_name": "Nutella",
    "brands": "Ferrero, Nutella",
    "image_url": "https://images.example/nutella.jpg",
    "nutriments": {
      "energy-kcal_100g": 539,
      "proteins_100g": "6.3",
      "fat_100g": 30.9,
      "carbohydrates_100g": 57.5
    }
  }
}`

type foodServer struct {
	server *httptest.Server
	hits   atomic.Int32
	agent  atomic.Value
}

func newFoodServer(t *testing.T) *foodServer {
	t.Helper()
	fs := &foodServer{}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		fs.agent.Store(r.UserAgent())
		switch r.URL.Path {
		case "/api/v2/product/3017620422003.json":
			_, _ = w.Write([]byte(nutellaDocument))
		case "/api/v2/product/40000000.json":
			_, _ = w.Write([]byte(`{"status":1,"product":{"product_name":"Juice","nutriments":{"energy_100g":"200"}}}`))
		case "/api/v2/product/50000000.json":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/v2/product/60000000.json":
			_, _ = w.Write([]byte(`{"status":0,"status_verbose":"product not found"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":0}`))
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func newTestService(t *testing.T, fs *foodServer) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Product{}))

	client, err := NewClient(ClientConfig{BaseURL: fs.server.URL + "/", UserAgent: "FitLog/test", HTTPClient: fs.server.Client()})
	require.NoError(t, err)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Remote:     client,
		IDProvider: &ids.SequenceProvider{Prefix: "food-"},
		Clock:      func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return service
}

func TestClientMapsOpenFoodFactsProduct(t *testing.T) {
	fs := newFoodServer(t)
	client, err := NewClient(ClientConfig{BaseURL: fs.server.URL, UserAgent: "FitLog/test", HTTPClient: fs.server.Client()})
	require.NoError(t, err)

	product, err := client.Product(context.Background(), "3017620422003")
	require.NoError(t, err)
	assert.Equal(t, "Nutella", product.Name)
	assert.Equal(t, "Ferrero", product.Brand)
	assert.Equal(t, 539.0, product.KcalPer100g)
	assert.Equal(t, 6.3, product.ProteinPer100g)
	assert.Equal(t, 30.9, product.LipidPer100g)
	assert.Equal(t, 57.5, product.CarbsPer100g)
	assert.Equal(t, "FitLog/test", fs.agent.Load())
}

func TestClientConvertsKilojoules(t *testing.T) {
	fs := newFoodServer(t)
	client, err := NewClient(ClientConfig{BaseURL: fs.server.URL, HTTPClient: fs.server.Client()})
	require.NoError(t, err)

	product, err := client.Product(context.Background(), "40000000")
	require.NoError(t, err)
	assert.Equal(t, 47.8, product.KcalPer100g)
}

func TestClientErrors(t *testing.T) {
	fs := newFoodServer(t)
	client, err := NewClient(ClientConfig{BaseURL: fs.server.URL, HTTPClient: fs.server.Client()})
	require.NoError(t, err)

	_, err = client.Product(context.Background(), "12ab")
	assert.ErrorIs(t, err, ErrInvalidBarcode)
	_, err = client.Product(context.Background(), "99999999")
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = client.Product(context.Background(), "60000000")
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = client.Product(context.Background(), "50000000")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(3), fs.hits.Load())
}

func TestLookupCachesRemoteProducts(t *testing.T) {
	fs := newFoodServer(t)
	service := newTestService(t, fs)
	ctx := context.Background()

	first, err := service.Lookup(ctx, "user-a", "3017620422003")
	require.NoError(t, err)
	second, err := service.Lookup(ctx, "user-a", "3017620422003")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, SourceOpenFoodFacts, second.Source)
	assert.Equal(t, int32(1), fs.hits.Load())

	portion := nutrition.Portion(second.Label(), 20)
	assert.InDelta(t, 107.8, portion.Kcal, 0.001)
}

func TestLookupMapsErrorKinds(t *testing.T) {
	fs := newFoodServer(t)
	service := newTestService(t, fs)
	ctx := context.Background()

	_, err := service.Lookup(ctx, "user-a", "abc")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	_, err = service.Lookup(ctx, "user-a", "99999999")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = service.Lookup(ctx, "user-a", "50000000")
	assert.Equal(t, "foods.lookup.upstream_failed", apperr.CodeOf(err))
}

func TestCustomFoodsAndSearch(t *testing.T) {
	fs := newFoodServer(t)
	service := newTestService(t, fs)
	ctx := context.Background()

	_, err := service.Lookup(ctx, "user-a", "3017620422003")
	require.NoError(t, err)
	custom, err := service.CreateCustom(ctx, "user-a", CustomInput{Name: "Grandma's Nut Cake", Per100g: nutrition.Per100g{Kcal: 420, ProteinG: 7, LipidG: 22, CarbsG: 50}})
	require.NoError(t, err)
	assert.Equal(t, SourceCustom, custom.Source)

	mine, err := service.Search(ctx, "user-a", "NUT", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Grandma's Nut Cake", mine[0].Name)
	assert.Equal(t, "Nutella", mine[1].Name)

	theirs, err := service.Search(ctx, "user-b", "nut", 10)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "Nutella", theirs[0].Name)

	_, err = service.CreateCustom(ctx, "user-a", CustomInput{Name: "Impossible", Per100g: nutrition.Per100g{ProteinG: 60, CarbsG: 60}})
	assert.Equal(t, "invalid_nutrients", apperr.ReasonOf(err, ""))
	_, err = service.CreateCustom(ctx, "user-a", CustomInput{Name: "Bad code", Barcode: "12"})
	assert.Equal(t, "invalid_barcode", apperr.ReasonOf(err, ""))
	_, err = service.CreateCustom(ctx, "user-a", CustomInput{})
	assert.Equal(t, "missing_name", apperr.ReasonOf(err, ""))
}

func TestLookupFindsOwnCustomFoodByBarcode(t *testing.T) {
	fs := newFoodServer(t)
	service := newTestService(t, fs)
	ctx := context.Background()

	custom, err := service.CreateCustom(ctx, "user-a", CustomInput{
		Name:    "Local Bakery Rye",
		Barcode: "12345670",
		Per100g: nutrition.Per100g{Kcal: 250, ProteinG: 8, LipidG: 2, CarbsG: 48},
	})
	require.NoError(t, err)

	found, err := service.Lookup(ctx, "user-a", "12345670")
	require.NoError(t, err)
	assert.Equal(t, custom.ID, found.ID)
	assert.Equal(t, SourceCustom, found.Source)
	assert.Equal(t, int32(0), fs.hits.Load())

	_, err = service.Lookup(ctx, "user-b", "12345670")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, int32(1), fs.hits.Load())
}
