// Package scrape fakes the fetch-and-parse pipeline a real tracker would
// run against a retailer page. The contract is the real one (URL in,
// product attributes out); the data is synthesized.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedStore = errors.New("URL is not from a supported store")
	ErrScrapeFailed     = errors.New("failed to scrape product data")
)

// Result carries the attributes a scrape yields for one product page.
type Result struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	Store         string  `json:"store"`
	CurrentPrice  float64 `json:"currentPrice"`
	OriginalPrice float64 `json:"originalPrice"`
	ImageURL      string  `json:"imageUrl"`
}

const DefaultDelay = 1 * time.Second

var imageCategories = []string{
	"tech", "electronics", "gadget", "computer", "headphones", "watch",
}

// Simulator synthesizes product data for supported store URLs after an
// artificial network delay. Zero value scrapes without delay.
type Simulator struct {
	Delay time.Duration
}

// StoreFromURL classifies a raw URL into a retailer label. Unknown is
// only reached when the URL does not parse at all.
func StoreFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "Unknown"
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "amazon"):
		return "Amazon"
	case strings.Contains(host, "flipkart"):
		return "Flipkart"
	default:
		return "Other"
	}
}

// Scrape validates the URL, waits out the simulated network latency, and
// returns randomized product attributes shaped like a real scrape result.
func (s Simulator) Scrape(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, ErrScrapeFailed
	}

	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, "amazon") && !strings.Contains(host, "flipkart") {
		return Result{}, ErrUnsupportedStore
	}

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	price := float64(100 + rand.Intn(500))
	originalPrice := price + float64(rand.Intn(200))

	return Result{
		Name:          productNameFromPath(u.Path),
		URL:           rawURL,
		Store:         StoreFromURL(rawURL),
		CurrentPrice:  price,
		OriginalPrice: originalPrice,
		ImageURL:      randomImageURL(),
	}, nil
}

// productNameFromPath derives a display name from the last non-empty path
// segment: hyphens become spaces, each word gets capitalized. URLs with
// no usable path get a numbered placeholder.
func productNameFromPath(path string) string {
	var last string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			last = seg
		}
	}
	if last == "" {
		return fmt.Sprintf("Product %d", rand.Intn(1000000))
	}

	words := strings.Split(strings.ReplaceAll(last, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// randomImageURL picks a category-tagged placeholder. The sig parameter
// keeps the placeholder service from returning the same image for every
// product in a category.
func randomImageURL() string {
	category := imageCategories[rand.Intn(len(imageCategories))]
	return fmt.Sprintf("https://source.unsplash.com/random/300x300/?%s&sig=%s",
		category, uuid.NewString())
}
