package tracker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MemStore keeps everything in process memory. Ids are monotonic and never
// reused within a process lifetime; nothing survives a restart.
type MemStore struct {
	mu            sync.RWMutex
	products      map[int]Product
	users         map[int]User
	nextProductID int
	nextUserID    int

	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:      map[int]Product{},
		users:         map[int]User{},
		nextProductID: 1,
		nextUserID:    1,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := Product{
		ID:            s.nextProductID,
		Name:          in.Name,
		URL:           in.URL,
		ImageURL:      in.ImageURL,
		Store:         in.Store,
		CurrentPrice:  *in.CurrentPrice,
		TargetPrice:   *in.TargetPrice,
		OriginalPrice: in.OriginalPrice,
		LastUpdated:   now,
		CreatedAt:     now,
		UserID:        in.UserID,
	}
	s.nextProductID++
	s.products[p.ID] = p

	s.recomputeBestDeals()
	return s.products[p.ID], nil
}

func (s *MemStore) GetProduct(ctx context.Context, id int) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	return p, ok, nil
}

func (s *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productsInIDOrder(), nil
}

func (s *MemStore) ListProductsByUser(ctx context.Context, userID int) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0)
	for _, p := range s.productsInIDOrder() {
		if p.UserID != nil && *p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateProduct(ctx context.Context, id int, patch ProductPatch) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return Product{}, false, nil
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.URL != nil {
		p.URL = *patch.URL
	}
	if patch.ImageURL != nil {
		p.ImageURL = patch.ImageURL
	}
	if patch.Store != nil {
		p.Store = *patch.Store
	}
	if patch.CurrentPrice != nil {
		p.CurrentPrice = *patch.CurrentPrice
	}
	if patch.TargetPrice != nil {
		p.TargetPrice = *patch.TargetPrice
	}
	if patch.OriginalPrice != nil {
		p.OriginalPrice = patch.OriginalPrice
	}
	if patch.UserID != nil {
		p.UserID = patch.UserID
	}
	p.LastUpdated = s.now()
	s.products[id] = p

	s.recomputeBestDeals()
	return s.products[id], true, nil
}

func (s *MemStore) DeleteProduct(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	s.recomputeBestDeals()
	return true, nil
}

func (s *MemStore) FeaturedProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.productsInIDOrder()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsBestDeal != out[j].IsBestDeal {
			return out[i].IsBestDeal
		}
		return discountOf(out[i]) > discountOf(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) RecentlyTracked(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.productsInIDOrder()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recomputeBestDeals rescans the whole collection: group by lowercased
// name, clear every flag, then mark the cheapest member of each group
// with more than one product. Ties go to the earliest tracked product.
// Callers must hold mu.
func (s *MemStore) recomputeBestDeals() {
	ids := make([]int, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	groups := map[string][]int{}
	for _, id := range ids {
		key := strings.ToLower(s.products[id].Name)
		groups[key] = append(groups[key], id)
	}

	for _, id := range ids {
		p := s.products[id]
		p.IsBestDeal = false
		s.products[id] = p
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		best := group[0]
		for _, id := range group[1:] {
			if s.products[id].CurrentPrice < s.products[best].CurrentPrice {
				best = id
			}
		}
		p := s.products[best]
		p.IsBestDeal = true
		s.products[best] = p
	}
}

// productsInIDOrder returns a copy of the collection in insertion order.
// Callers must hold mu.
func (s *MemStore) productsInIDOrder() []Product {
	ids := make([]int, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.products[id])
	}
	return out
}

func (s *MemStore) CreateUser(ctx context.Context, in UserInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return User{}, ErrUsernameExists
		}
		if u.Email == email {
			return User{}, ErrEmailExists
		}
	}

	u := User{
		ID:                   s.nextUserID,
		Username:             username,
		PasswordHash:         hash,
		Email:                email,
		ReceiveInstantAlerts: true,
		ReceiveDailyDigest:   false,
		CreatedAt:            s.now(),
	}
	if in.ReceiveInstantAlerts != nil {
		u.ReceiveInstantAlerts = *in.ReceiveInstantAlerts
	}
	if in.ReceiveDailyDigest != nil {
		u.ReceiveDailyDigest = *in.ReceiveDailyDigest
	}
	s.nextUserID++
	s.users[u.ID] = u
	return u, nil
}

func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (s *MemStore) UpdateUser(ctx context.Context, id int, patch UserPatch) (User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, false, nil
	}
	if patch.ReceiveInstantAlerts != nil {
		u.ReceiveInstantAlerts = *patch.ReceiveInstantAlerts
	}
	if patch.ReceiveDailyDigest != nil {
		u.ReceiveDailyDigest = *patch.ReceiveDailyDigest
	}
	s.users[id] = u
	return u, true, nil
}
