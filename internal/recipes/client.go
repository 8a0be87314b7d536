package recipes

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"fridgeio/internal/model"
)

const defaultBaseURL = "https://api.edamam.com/api/recipes/v2"

// Client queries the recipe search API. Results are randomized by the
// service, so repeated identical queries return different pages.
type Client struct {
	appID      string
	appKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(appID, appKey string, opts ...Option) *Client {
	c := &Client{
		appID:      appID,
		appKey:     appKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if API credentials are set.
func (c *Client) Configured() bool {
	return c.appID != "" && c.appKey != ""
}

type searchResponse struct {
	Hits []struct {
		Recipe struct {
			Label           string   `json:"label"`
			Image           string   `json:"image"`
			Source          string   `json:"source"`
			URL             string   `json:"url"`
			IngredientLines []string `json:"ingredientLines"`
			Ingredients     []struct {
				Food string `json:"food"`
			} `json:"ingredients"`
			Calories float64  `json:"calories"`
			Cautions []string `json:"cautions"`
			MealType []string `json:"mealType"`
		} `json:"recipe"`
	} `json:"hits"`
}

// Search fetches one randomized page of public recipes for a free-text
// query.
func (c *Client) Search(ctx context.Context, query string) ([]model.RecipeResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("recipe client not configured: missing app id or key")
	}

	params := url.Values{}
	params.Set("type", "public")
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)
	params.Set("q", query)
	params.Set("random", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build recipe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recipe service returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode recipe response: %w", err)
	}

	results := make([]model.RecipeResult, 0, len(decoded.Hits))
	for _, hit := range decoded.Hits {
		r := hit.Recipe
		foods := make([]string, 0, len(r.Ingredients))
		for _, ing := range r.Ingredients {
			foods = append(foods, ing.Food)
		}
		results = append(results, model.RecipeResult{
			Name:            r.Label,
			ImageURL:        r.Image,
			Source:          r.Source,
			URL:             r.URL,
			IngredientLines: r.IngredientLines,
			Ingredients:     foods,
			Calories:        int(math.Floor(r.Calories)),
			Cautions:        strings.Join(r.Cautions, ", "),
			MealTypes:       strings.Join(r.MealType, ", "),
		})
	}
	return results, nil
}
