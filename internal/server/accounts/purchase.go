package accounts

import (
	"context"
	"fmt"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/server/models"
)

// Purchase runs the coin transaction: the user record is read once with its
// version, the balance and ownership set are updated in memory, and a single
// compare-and-set writes the result. Losing the race surfaces as
// common.ErrConflict and is never silently retried; the caller decides
// whether to ask the user to try again.
func (s *Service) Purchase(ctx context.Context, username, movieID string) error {
	movie, err := s.catalog.Get(ctx, movieID)
	if err != nil {
		return err
	}
	if movie.Price <= 0 {
		return fmt.Errorf("%w: movie %s is not purchasable", common.ErrInvalidInput, movieID)
	}

	entry, err := s.store.Get(ctx, userKey(username))
	if err != nil {
		return err
	}
	var user models.User
	if err := unmarshalUser(entry, &user); err != nil {
		return err
	}

	if user.Owns(movieID) {
		return common.ErrAlreadyOwned
	}
	if user.Coins < movie.Price {
		return common.ErrInsufficientFunds
	}

	user.Coins -= movie.Price
	user.Purchased = append(user.Purchased, movieID)

	data, err := marshalUser(&user)
	if err != nil {
		return err
	}
	if err := s.store.CompareAndSet(ctx, userKey(username), entry.Version, data); err != nil {
		if kv.IsConflict(err) {
			return fmt.Errorf("%w: purchase lost a concurrent update", common.ErrConflict)
		}
		return fmt.Errorf("purchase %s/%s: %w", username, movieID, err)
	}

	s.audit(ctx, "purchase",
		fmt.Sprintf("%s bought %s for %d coins", username, movie.Title, movie.Price))
	return nil
}

// RedeemKey consumes a one-shot code: coin keys credit the balance, vip keys
// extend the expiry window from the later of now and the current expiry.
func (s *Service) RedeemKey(ctx context.Context, username, code string) (*models.VipKey, error) {
	var key models.VipKey
	err := kv.GetJSON(ctx, s.store, kv.K(PrefixKeys, code), &key)
	if kv.IsNotFound(err) {
		return nil, fmt.Errorf("%w: invalid key", common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	if key.Type == "coin" {
		user.Coins += key.Value
	} else {
		base := s.now().UnixMilli()
		if user.ExpiryDate != nil && *user.ExpiryDate > base {
			base = *user.ExpiryDate
		}
		expiry := base + int64(key.Days)*millisPerDay
		user.ExpiryDate = &expiry
	}
	if err := s.put(ctx, user); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, kv.K(PrefixKeys, code)); err != nil {
		return nil, fmt.Errorf("consume key: %w", err)
	}

	if key.Type == "coin" {
		s.audit(ctx, "redeem_coin", fmt.Sprintf("%s redeemed %d coins", username, key.Value))
	} else {
		s.audit(ctx, "redeem_vip", fmt.Sprintf("%s redeemed %d days", username, key.Days))
	}
	return &key, nil
}

// CreateKey registers a redeemable code.
func (s *Service) CreateKey(ctx context.Context, key models.VipKey) error {
	if key.Code == "" {
		return fmt.Errorf("%w: empty key code", common.ErrInvalidInput)
	}
	if err := kv.PutJSON(ctx, s.store, kv.K(PrefixKeys, key.Code), key); err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

// ListKeys returns every unredeemed code.
func (s *Service) ListKeys(ctx context.Context) ([]models.VipKey, error) {
	entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(PrefixKeys)})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]models.VipKey, 0, len(entries))
	for _, e := range entries {
		var k models.VipKey
		if err := unmarshalValue(e.Value, &k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

const millisPerDay = int64(24 * 60 * 60 * 1000)
