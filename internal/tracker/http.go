package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"PricePulse/internal/scrape"
	"PricePulse/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20

	featuredRouteLimit = 3
	recentRouteLimit   = 5
)

// Scraper is the collaborator that turns a product URL into product
// attributes. The simulator satisfies it today; a real pipeline would too.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (scrape.Result, error)
}

type Server struct {
	Store   Store
	Scraper Scraper
	Log     *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Route("/api", func(api chi.Router) {
		api.Get("/products", s.listProducts)
		api.Post("/products", s.createProduct)
		api.Get("/products/{id}", s.getProduct)
		api.Patch("/products/{id}", s.patchProduct)
		api.Delete("/products/{id}", s.deleteProduct)

		api.Get("/featured-products", s.featuredProducts)
		api.Get("/recently-tracked", s.recentlyTracked)

		api.Post("/scrape-url", s.scrapeURL)
		api.Post("/notification-preferences", s.notificationPreferences)
		api.Post("/users", s.signup)
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products []Product
		err      error
	)
	if raw := r.URL.Query().Get("userId"); raw != "" {
		userID, convErr := strconv.Atoi(raw)
		if convErr != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "userId must be a number", nil)
			return
		}
		products, err = s.Store.ListProductsByUser(r.Context(), userID)
	} else {
		products, err = s.Store.ListProducts(r.Context())
	}
	if err != nil {
		if s.Log != nil {
			s.Log.Error("list products failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to fetch products", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	p, found, err := s.Store.GetProduct(r.Context(), id)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("get product failed", zap.Error(err), zap.Int("id", id))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to fetch product", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	p, err := s.Store.CreateProduct(r.Context(), in)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("create product failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to create product", nil)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) patchProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	var patch ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(patch); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	p, found, err := s.Store.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("update product failed", zap.Error(err), zap.Int("id", id))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to update product", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	deleted, err := s.Store.DeleteProduct(r.Context(), id)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("delete product failed", zap.Error(err), zap.Int("id", id))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to delete product", nil)
		return
	}
	if !deleted {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) featuredProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.FeaturedProducts(r.Context(), queryLimit(r, featuredRouteLimit))
	if err != nil {
		if s.Log != nil {
			s.Log.Error("featured products failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to fetch featured products", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) recentlyTracked(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.RecentlyTracked(r.Context(), queryLimit(r, recentRouteLimit))
	if err != nil {
		if s.Log != nil {
			s.Log.Error("recently tracked failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to fetch recently tracked products", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) scrapeURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url" validate:"required,url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Please enter a valid URL", nil)
		return
	}

	result, err := s.Scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		if s.Log != nil {
			s.Log.Debug("scrape failed", zap.Error(err), zap.String("url", req.URL))
		}
		kit.WriteError(w, r, http.StatusBadRequest, scrapeErrorMessage(err), nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, result)
}

func scrapeErrorMessage(err error) string {
	if errors.Is(err, scrape.ErrUnsupportedStore) {
		return scrape.ErrUnsupportedStore.Error()
	}
	return scrape.ErrScrapeFailed.Error()
}

func (s *Server) notificationPreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email                string `json:"email"`
		ReceiveInstantAlerts *bool  `json:"receiveInstantAlerts"`
		ReceiveDailyDigest   *bool  `json:"receiveDailyDigest"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "Email is required", nil)
		return
	}

	// Persist onto the matching account when there is one; the endpoint
	// stays usable for addresses that never signed up.
	u, found, err := s.Store.GetUserByEmail(r.Context(), req.Email)
	if err == nil && found {
		_, _, err = s.Store.UpdateUser(r.Context(), u.ID, UserPatch{
			ReceiveInstantAlerts: req.ReceiveInstantAlerts,
			ReceiveDailyDigest:   req.ReceiveDailyDigest,
		})
	}
	if err != nil {
		if s.Log != nil {
			s.Log.Error("save notification preferences failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to save notification preferences", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Notification preferences saved",
	})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var in UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(in); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	u, err := s.Store.CreateUser(r.Context(), in)
	if err != nil {
		if errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrEmailExists) {
			kit.WriteError(w, r, http.StatusConflict, err.Error(), nil)
			return
		}
		if s.Log != nil {
			s.Log.Error("create user failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Failed to create user", nil)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, u)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dst)
}

func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

var validate = newValidator()

// newValidator reports field names by json tag so validation messages
// match what the client actually sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fe.Field() + " must be a valid URL"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
