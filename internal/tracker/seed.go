package tracker

import "context"

// SeedDemo loads the sample tracking list used by the demo UI. Inserting
// through CreateProduct keeps the best-deal flags consistent.
func SeedDemo(ctx context.Context, s Store) error {
	demo := []ProductInput{
		{
			Name:          "Premium Wireless Headphones",
			URL:           "https://www.amazon.com/headphones/premium",
			ImageURL:      ptr("https://images.unsplash.com/photo-1588872657578-7efd1f1555ed"),
			Store:         "Amazon",
			CurrentPrice:  ptr(129.99),
			TargetPrice:   ptr(199.99),
			OriginalPrice: ptr(199.99),
			UserID:        ptr(1),
		},
		{
			Name:          "Ultra Slim Laptop",
			URL:           "https://www.flipkart.com/laptop/ultraslim",
			ImageURL:      ptr("https://images.unsplash.com/photo-1593642702821-c8da6771f0c6"),
			Store:         "Flipkart",
			CurrentPrice:  ptr(849.99),
			TargetPrice:   ptr(799.99),
			OriginalPrice: ptr(999.99),
			UserID:        ptr(1),
		},
		{
			Name:          "Smart Watch Series 7",
			URL:           "https://www.amazon.com/smartwatch/series7",
			ImageURL:      ptr("https://images.unsplash.com/photo-1574944985070-8f3ebc6b79d2"),
			Store:         "Amazon",
			CurrentPrice:  ptr(299.99),
			TargetPrice:   ptr(349.99),
			OriginalPrice: ptr(399.99),
			UserID:        ptr(1),
		},
		{
			Name:          "Smartphone Pro Max",
			URL:           "https://www.flipkart.com/smartphone/promax",
			ImageURL:      ptr("https://images.unsplash.com/photo-1511707171634-5f897ff02aa9"),
			Store:         "Flipkart",
			CurrentPrice:  ptr(999.99),
			TargetPrice:   ptr(899.99),
			OriginalPrice: ptr(1099.99),
			UserID:        ptr(1),
		},
		{
			Name:          "Wireless Earbuds",
			URL:           "https://www.amazon.com/earbuds/wireless",
			ImageURL:      ptr("https://images.unsplash.com/photo-1605464315542-bda3e2f4e605"),
			Store:         "Amazon",
			CurrentPrice:  ptr(79.99),
			TargetPrice:   ptr(69.99),
			OriginalPrice: ptr(99.99),
			UserID:        ptr(1),
		},
		{
			Name:          "4K Smart TV",
			URL:           "https://www.flipkart.com/tv/4ksmart",
			ImageURL:      ptr("https://images.unsplash.com/photo-1593359677879-a4bb92f829d1"),
			Store:         "Flipkart",
			CurrentPrice:  ptr(499.99),
			TargetPrice:   ptr(449.99),
			OriginalPrice: ptr(599.99),
			UserID:        ptr(1),
		},
	}

	for _, in := range demo {
		if _, err := s.CreateProduct(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
