// Package nutritionix implements domain.NutritionProvider on the Nutritionix
// natural-language nutrients endpoint.
package nutritionix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fitbite/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBaseURL is the public Nutritionix API.
const DefaultBaseURL = "https://trackapi.nutritionix.com"

var tracer = otel.Tracer("fitbite/internal/adapter/nutritionix")

// ErrNoMatch is returned when the query matched no food.
var ErrNoMatch = errors.New("nutritionix: no matching food")

type food struct {
	Calories *float64 `json:"nf_calories"`
	Protein  *float64 `json:"nf_protein"`
	Carbs    *float64 `json:"nf_total_carbohydrate"`
	Fat      *float64 `json:"nf_total_fat"`
}

type nutrientsResponse struct {
	Foods []food `json:"foods"`
}

// Client queries Nutritionix.
type Client struct {
	appID   string
	appKey  string
	baseURL string
	http    *http.Client
}

var _ domain.NutritionProvider = (*Client)(nil)

// New creates a client; an empty baseURL uses DefaultBaseURL.
func New(appID, appKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		appID:   appID,
		appKey:  appKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Nutrients returns the estimate for the first food matching query.
func (c *Client) Nutrients(ctx context.Context, query string) (domain.NutritionEstimate, error) {
	ctx, span := tracer.Start(ctx, "nutritionix.nutrients", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return domain.NutritionEstimate{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/natural/nutrients", bytes.NewReader(body))
	if err != nil {
		return domain.NutritionEstimate{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-app-id", c.appID)
	req.Header.Set("x-app-key", c.appKey)

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "request failed")
		return domain.NutritionEstimate{}, fmt.Errorf("nutritionix request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode == http.StatusNotFound {
		return domain.NutritionEstimate{}, ErrNoMatch
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return domain.NutritionEstimate{}, fmt.Errorf("nutritionix: status %d", resp.StatusCode)
	}

	var out nutrientsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return domain.NutritionEstimate{}, fmt.Errorf("decode nutritionix response: %w", err)
	}
	if len(out.Foods) == 0 {
		return domain.NutritionEstimate{}, ErrNoMatch
	}
	f := out.Foods[0]
	return domain.NutritionEstimate{
		Calories: value(f.Calories),
		ProteinG: value(f.Protein),
		CarbsG:   value(f.Carbs),
		FatG:     value(f.Fat),
	}, nil
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
