package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix  = "checkout:cart:"
	DefaultCartTTL = 30 * time.Minute
)

// ErrCartNotFound is returned when a checkout token is unknown or expired.
var ErrCartNotFound = errors.New("checkout cart not found")

// Cart is the server-side state of one checkout attempt, keyed by the
// checkout token handed to the browser. The client never carries cart data
// itself; the token is the only thing that crosses the wire.
type Cart struct {
	Token      string    `json:"token"`
	UserID     uint      `json:"user_id"`
	Email      string    `json:"email"`
	PhotoCount int       `json:"photo_count"`
	Credits    int64     `json:"credits"`
	LockToken  string    `json:"lock_token"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sessions stores in-flight checkout carts in Redis with a short TTL.
type Sessions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessions creates a checkout session store.
func NewSessions(client *redis.Client, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &Sessions{client: client, ttl: ttl}
}

// Create stores a new cart and returns its checkout token.
func (s *Sessions) Create(ctx context.Context, cart Cart) (string, error) {
	if cart.UserID == 0 {
		return "", errors.New("user_id is required")
	}
	if cart.Credits <= 0 {
		return "", errors.New("credits must be positive")
	}

	cart.Token = uuid.New().String()
	cart.CreatedAt = time.Now()

	data, err := json.Marshal(cart)
	if err != nil {
		return "", fmt.Errorf("marshal checkout cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKeyPrefix+cart.Token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store checkout cart: %w", err)
	}
	return cart.Token, nil
}

// Get loads a cart by token.
func (s *Sessions) Get(ctx context.Context, token string) (*Cart, error) {
	data, err := s.client.Get(ctx, cartKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}

	var cart Cart
	if err := json.Unmarshal([]byte(data), &cart); err != nil {
		return nil, fmt.Errorf("unmarshal checkout cart: %w", err)
	}
	return &cart, nil
}

// Delete removes a cart once checkout completes or is abandoned.
func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, cartKeyPrefix+token).Err()
}
