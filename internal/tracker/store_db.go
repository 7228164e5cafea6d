package tracker

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

// PostgresStore is the durable swap-in behind the same Store interface.
// Every product mutation runs mutate-then-recompute inside one
// transaction so concurrent writers cannot observe stale flags.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			pass_hash BYTEA NOT NULL,
			email TEXT NOT NULL UNIQUE,
			receive_instant_alerts BOOLEAN NOT NULL DEFAULT TRUE,
			receive_daily_digest BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			image_url TEXT,
			store TEXT NOT NULL,
			current_price DOUBLE PRECISION NOT NULL,
			target_price DOUBLE PRECISION NOT NULL,
			original_price DOUBLE PRECISION,
			last_updated TIMESTAMPTZ NOT NULL,
			is_best_deal BOOLEAN NOT NULL DEFAULT FALSE,
			user_id INTEGER,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

const productColumns = `
	id, name, url, image_url, store,
	current_price, target_price, original_price,
	last_updated, is_best_deal, user_id, created_at`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var (
		p        Product
		imageURL sql.NullString
		orig     sql.NullFloat64
		userID   sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.URL, &imageURL, &p.Store,
		&p.CurrentPrice, &p.TargetPrice, &orig,
		&p.LastUpdated, &p.IsBestDeal, &userID, &p.CreatedAt,
	)
	if err != nil {
		return Product{}, err
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}
	if orig.Valid {
		p.OriginalPrice = &orig.Float64
	}
	if userID.Valid {
		id := int(userID.Int64)
		p.UserID = &id
	}
	return p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			now := time.Now().UTC()

			var id int
			err := tx.QueryRowContext(ctx, `
				INSERT INTO products
					(name, url, image_url, store, current_price, target_price,
					 original_price, last_updated, is_best_deal, user_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $8)
				RETURNING id
			`, in.Name, in.URL, in.ImageURL, in.Store, *in.CurrentPrice,
				*in.TargetPrice, in.OriginalPrice, now, in.UserID).Scan(&id)
			if err != nil {
				return err
			}

			if err := recomputeBestDealsTx(ctx, tx); err != nil {
				return err
			}

			p, err = scanProduct(tx.QueryRowContext(ctx,
				`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
			return err
		})
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int) (Product, bool, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.db.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id ASC`)
}

func (s *PostgresStore) ListProductsByUser(ctx context.Context, userID int) ([]Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE user_id = $1 ORDER BY id ASC`, userID)
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, id int, patch ProductPatch) (Product, bool, error) {
	set := []string{"last_updated = now()"}
	args := []any{}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, col+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.URL != nil {
		add("url", *patch.URL)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if patch.Store != nil {
		add("store", *patch.Store)
	}
	if patch.CurrentPrice != nil {
		add("current_price", *patch.CurrentPrice)
	}
	if patch.TargetPrice != nil {
		add("target_price", *patch.TargetPrice)
	}
	if patch.OriginalPrice != nil {
		add("original_price", *patch.OriginalPrice)
	}
	if patch.UserID != nil {
		add("user_id", *patch.UserID)
	}
	args = append(args, id)
	query := `UPDATE products SET ` + strings.Join(set, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args))

	var (
		p     Product
		found bool
	)
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			found = true

			if err := recomputeBestDealsTx(ctx, tx); err != nil {
				return err
			}
			p, err = scanProduct(tx.QueryRowContext(ctx,
				`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
			return err
		})
	})
	if err != nil {
		return Product{}, false, err
	}
	return p, found, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id int) (bool, error) {
	var deleted bool
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			deleted = true
			return recomputeBestDealsTx(ctx, tx)
		})
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *PostgresStore) FeaturedProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY
			is_best_deal DESC,
			COALESCE((original_price - current_price) / NULLIF(original_price, 0), 0) DESC,
			id ASC
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) RecentlyTracked(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.queryProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
}

// recomputeBestDealsTx mirrors MemStore.recomputeBestDeals: clear every
// flag, then mark the cheapest member (ties to lowest id) of each
// lower(name) group with more than one product.
func recomputeBestDealsTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET is_best_deal = FALSE WHERE is_best_deal`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE products SET is_best_deal = TRUE
		WHERE id IN (
			SELECT DISTINCT ON (lower(name)) id
			FROM products
			WHERE lower(name) IN (
				SELECT lower(name) FROM products
				GROUP BY lower(name)
				HAVING count(*) > 1
			)
			ORDER BY lower(name), current_price ASC, id ASC
		)
	`)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, in UserInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	instant := true
	digest := false
	if in.ReceiveInstantAlerts != nil {
		instant = *in.ReceiveInstantAlerts
	}
	if in.ReceiveDailyDigest != nil {
		digest = *in.ReceiveDailyDigest
	}

	var u User
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO users
				(username, pass_hash, email, receive_instant_alerts, receive_daily_digest)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, username, pass_hash, email,
				receive_instant_alerts, receive_daily_digest, created_at
		`, username, hash, email, instant, digest).Scan(
			&u.ID, &u.Username, &u.PasswordHash, &u.Email,
			&u.ReceiveInstantAlerts, &u.ReceiveDailyDigest, &u.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return User{}, ErrEmailExists
			}
			return User{}, ErrUsernameExists
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, bool, error) {
	return s.queryUser(ctx, `WHERE username = $1`, username)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.queryUser(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int, patch UserPatch) (User, bool, error) {
	set := []string{}
	args := []any{}
	if patch.ReceiveInstantAlerts != nil {
		args = append(args, *patch.ReceiveInstantAlerts)
		set = append(set, "receive_instant_alerts = $"+strconv.Itoa(len(args)))
	}
	if patch.ReceiveDailyDigest != nil {
		args = append(args, *patch.ReceiveDailyDigest)
		set = append(set, "receive_daily_digest = $"+strconv.Itoa(len(args)))
	}
	if len(set) == 0 {
		// Nothing to change; behave like a read.
		return s.queryUser(ctx, `WHERE id = $1`, id)
	}
	args = append(args, id)

	var u User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			UPDATE users SET `+strings.Join(set, ", ")+`
			WHERE id = $`+strconv.Itoa(len(args))+`
			RETURNING id, username, pass_hash, email,
				receive_instant_alerts, receive_daily_digest, created_at
		`, args...).Scan(
			&u.ID, &u.Username, &u.PasswordHash, &u.Email,
			&u.ReceiveInstantAlerts, &u.ReceiveDailyDigest, &u.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) queryUser(ctx context.Context, where string, arg any) (User, bool, error) {
	var u User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, username, pass_hash, email,
				receive_instant_alerts, receive_daily_digest, created_at
			FROM users `+where, arg).Scan(
			&u.ID, &u.Username, &u.PasswordHash, &u.Email,
			&u.ReceiveInstantAlerts, &u.ReceiveDailyDigest, &u.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	var out []Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
