package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

const (
	propertyClientTimeout   = 5 * time.Second
	propertyClientThreshold = 10
)

// PropertyClient reads property data from the property service. Calls go
// through a circuit breaker so a dead collaborator fails fast instead of
// piling up booking requests.
type PropertyClient struct {
	baseURL    string
	httpClient *circuit.HTTPClient
	logger     *zap.Logger
}

func NewPropertyClient(baseURL string, logger *zap.Logger) *PropertyClient {
	return &PropertyClient{
		baseURL:    baseURL,
		httpClient: circuit.NewHTTPClient(propertyClientTimeout, propertyClientThreshold, nil),
		logger:     logger,
	}
}

func (c *PropertyClient) GetProperty(ctx context.Context, propertyID int64) (*model.Property, error) {
	url := fmt.Sprintf("%s/api/internal/properties/%d", c.baseURL, propertyID)

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get property %d: %w", propertyID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("property service error",
			zap.Int64("property_id", propertyID),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, fmt.Errorf("property service returned %d", resp.StatusCode)
	}

	var property model.Property
	if err := json.NewDecoder(resp.Body).Decode(&property); err != nil {
		return nil, fmt.Errorf("decode property %d: %w", propertyID, err)
	}

	return &property, nil
}
