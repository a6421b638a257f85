// Package foods looks up packaged foods by barcode and keeps a local product table.
package foods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultClientTimeout = 10 * time.Second
	kilojoulesPerKcal    = 4.184
	maxResponseBytes     = 2 << 20
)

var (
	// ErrInvalidBarcode is returned for anything other than 8 to 14 digits.
	ErrInvalidBarcode = errors.New("foods: barcode must be 8 to 14 digits")
	// ErrProductNotFound is returned when the food database has no product for the barcode.
	ErrProductNotFound = errors.New("foods: product not found")
	// ErrUpstream wraps transport and decoding failures talking to the food database.
	ErrUpstream = errors.New("foods: upstream lookup failed")

	barcodePattern = regexp.MustCompile(`^[0-9]{8,14}$`)
)

// RemoteProduct is the subset of an Open Food Facts product FitLog uses.
type RemoteProduct struct {
	Barcode        string
	Name           string
	Brand          string
	ImageURL       string
	KcalPer100g    float64
	ProteinPer100g float64
	LipidPer100g   float64
	CarbsPer100g   float64
}

// ClientConfig configures the Open Food Facts client.
type ClientConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client queries the Open Food Facts product API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("foods: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultClientTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, userAgent: strings.TrimSpace(cfg.UserAgent), httpClient: httpClient}, nil
}

// ValidBarcode reports whether barcode is 8 to 14 digits.
func ValidBarcode(barcode string) bool {
	return barcodePattern.MatchString(barcode)
}

// Product fetches one product by barcode.
func (c *Client) Product(ctx context.Context, barcode string) (RemoteProduct, error) {
	barcode = strings.TrimSpace(barcode)
	if !ValidBarcode(barcode) {
		return RemoteProduct{}, ErrInvalidBarcode
	}
	endpoint := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, barcode)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RemoteProduct{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	request.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return RemoteProduct{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return RemoteProduct{}, ErrProductNotFound
	}
	if response.StatusCode != http.StatusOK {
		return RemoteProduct{}, fmt.Errorf("%w: status %d", ErrUpstream, response.StatusCode)
	}

	var document productDocument
	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseBytes)).Decode(&document); err != nil {
		return RemoteProduct{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if document.Status != 1 || document.Product == nil {
		return RemoteProduct{}, ErrProductNotFound
	}
	return document.Product.toRemote(barcode), nil
}

type productDocument struct {
	Status  int              `json:"status"`
	Product *productResource `json:"product"`
}

type productResource struct {
	ProductName string     `json:"product_name"`
	GenericName string     `json:"generic_name"`
	Brands      string     `json:"brands"`
	ImageURL    string     `json:"image_url"`
	Nutriments  nutriments `json:"nutriments"`
}

type nutriments struct {
	EnergyKcal100g flexibleFloat `json:"energy-kcal_100g"`
	Energy100g     flexibleFloat `json:"energy_100g"`
	Proteins100g   flexibleFloat `json:"proteins_100g"`
	Fat100g        flexibleFloat `json:"fat_100g"`
	Carbs100g      flexibleFloat `json:"carbohydrates_100g"`
}

func (p productResource) toRemote(barcode string) RemoteProduct {
	name := strings.TrimSpace(p.ProductName)
	if name == "" {
		name = strings.TrimSpace(p.GenericName)
	}
	brand := strings.TrimSpace(p.Brands)
	if comma := strings.IndexByte(brand, ','); comma >= 0 {
		brand = strings.TrimSpace(brand[:comma])
	}
	kcal := float64(p.Nutriments.EnergyKcal100g)
	if kcal == 0 && p.Nutriments.Energy100g > 0 {
		kcal = float64(p.Nutriments.Energy100g) / kilojoulesPerKcal
	}
	return RemoteProduct{
		Barcode:        barcode,
		Name:           name,
		Brand:          brand,
		ImageURL:       strings.TrimSpace(p.ImageURL),
		KcalPer100g:    round1(kcal),
		ProteinPer100g: round1(float64(p.Nutriments.Proteins100g)),
		LipidPer100g:   round1(float64(p.Nutriments.Fat100g)),
		CarbsPer100g:   round1(float64(p.Nutriments.Carbs100g)),
	}
}

// flexibleFloat accepts numbers and numeric strings, which the food database mixes freely.
type flexibleFloat float64

func (f *flexibleFloat) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*f = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexibleFloat(value)
	return nil
}

func round1(value float64) float64 {
	if value < 0 {
		return 0
	}
	return float64(int64(value*10+0.5)) / 10
}
