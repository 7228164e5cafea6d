package tracker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

// Default result sizes when a caller passes limit <= 0. The featured
// endpoint uses its own, smaller default; see http.go.
const (
	DefaultFeaturedLimit = 6
	DefaultRecentLimit   = 5
)

type User struct {
	ID                   int       `json:"id"`
	Username             string    `json:"username"`
	PasswordHash         []byte    `json:"-"`
	Email                string    `json:"email"`
	ReceiveInstantAlerts bool      `json:"receiveInstantAlerts"`
	ReceiveDailyDigest   bool      `json:"receiveDailyDigest"`
	CreatedAt            time.Time `json:"createdAt"`
}

type Product struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	ImageURL      *string   `json:"imageUrl"`
	Store         string    `json:"store"`
	CurrentPrice  float64   `json:"currentPrice"`
	TargetPrice   float64   `json:"targetPrice"`
	OriginalPrice *float64  `json:"originalPrice"`
	LastUpdated   time.Time `json:"lastUpdated"`
	IsBestDeal    bool      `json:"isBestDeal"`
	UserID        *int      `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ProductInput is the client-suppliable subset of Product. IsBestDeal is
// deliberately absent: it is derived and recomputed after every mutation.
// Required numeric fields are pointers so that a missing field is
// distinguishable from an explicit zero.
type ProductInput struct {
	Name          string   `json:"name" validate:"required"`
	URL           string   `json:"url" validate:"required,url"`
	ImageURL      *string  `json:"imageUrl" validate:"omitempty,url"`
	Store         string   `json:"store" validate:"required"`
	CurrentPrice  *float64 `json:"currentPrice" validate:"required,gte=0"`
	TargetPrice   *float64 `json:"targetPrice" validate:"required,gte=0"`
	OriginalPrice *float64 `json:"originalPrice" validate:"omitempty,gte=0"`
	UserID        *int     `json:"userId"`
}

// ProductPatch is a partial ProductInput; nil fields are left untouched.
type ProductPatch struct {
	Name          *string  `json:"name" validate:"omitempty,min=1"`
	URL           *string  `json:"url" validate:"omitempty,url"`
	ImageURL      *string  `json:"imageUrl" validate:"omitempty,url"`
	Store         *string  `json:"store" validate:"omitempty,min=1"`
	CurrentPrice  *float64 `json:"currentPrice" validate:"omitempty,gte=0"`
	TargetPrice   *float64 `json:"targetPrice" validate:"omitempty,gte=0"`
	OriginalPrice *float64 `json:"originalPrice" validate:"omitempty,gte=0"`
	UserID        *int     `json:"userId"`
}

type UserInput struct {
	Username             string `json:"username" validate:"required"`
	Password             string `json:"password" validate:"required,min=8"`
	Email                string `json:"email" validate:"required,email"`
	ReceiveInstantAlerts *bool  `json:"receiveInstantAlerts"`
	ReceiveDailyDigest   *bool  `json:"receiveDailyDigest"`
}

// UserPatch updates notification preferences; other user fields are
// immutable after signup.
type UserPatch struct {
	ReceiveInstantAlerts *bool `json:"receiveInstantAlerts"`
	ReceiveDailyDigest   *bool `json:"receiveDailyDigest"`
}

// Store is the repository seam between the HTTP layer and whatever holds
// the data. Lookups report ordinary misses through the bool, not an error.
type Store interface {
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	GetProduct(ctx context.Context, id int) (Product, bool, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListProductsByUser(ctx context.Context, userID int) ([]Product, error)
	UpdateProduct(ctx context.Context, id int, patch ProductPatch) (Product, bool, error)
	DeleteProduct(ctx context.Context, id int) (bool, error)

	FeaturedProducts(ctx context.Context, limit int) ([]Product, error)
	RecentlyTracked(ctx context.Context, limit int) ([]Product, error)

	CreateUser(ctx context.Context, in UserInput) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (User, bool, error)
	UpdateUser(ctx context.Context, id int, patch UserPatch) (User, bool, error)

	Ping(ctx context.Context) error
}

// discountOf is the featured-products ranking key: fraction saved off the
// original price, 0 when no original price is known.
func discountOf(p Product) float64 {
	if p.OriginalPrice == nil || *p.OriginalPrice == 0 {
		return 0
	}
	return (*p.OriginalPrice - p.CurrentPrice) / *p.OriginalPrice
}
