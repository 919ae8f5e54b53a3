// Package accounts owns user records, authentication, entitlements and the
// coin purchase transaction. Purchases are the only path that needs optimistic
// concurrency; everything else is plain read-modify-write where the last
// writer wins.
package accounts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/models"
)

// Store prefixes owned by this package.
const (
	PrefixUsers     = "users"
	PrefixKeys      = "keys"
	PrefixAdminLogs = "admin_logs"
	PrefixBannedIPs = "banned_ips"
)

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen     = 32
	minPasswordLen   = 6
	auditLogTTL      = 30 * 24 * time.Hour
)

// MovieGetter is the slice of the catalog the purchase path needs.
type MovieGetter interface {
	Get(ctx context.Context, id string) (*models.Movie, error)
}

type Service struct {
	store   kv.Store
	catalog MovieGetter
	log     logging.Logger
	salt    []byte
	now     func() time.Time
}

func NewService(store kv.Store, catalog MovieGetter, salt string, log logging.Logger) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		log:     log,
		salt:    []byte(salt),
		now:     time.Now,
	}
}

// HashPassword derives the stored hash with PBKDF2-SHA256.
func (s *Service) HashPassword(password string) string {
	return hex.EncodeToString(
		pbkdf2.Key([]byte(password), s.salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New))
}

func userKey(username string) kv.Key { return kv.K(PrefixUsers, username) }

// Register creates a new account. The create is a compare-and-set against an
// absent key so two concurrent signups for the same name cannot both win.
func (s *Service) Register(ctx context.Context, username, password, ip, securityQ, securityA string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", common.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password shorter than %d characters", common.ErrInvalidInput, minPasswordLen)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: s.HashPassword(password),
		Favorites:    []string{},
		SessionID:    uuid.NewString(),
		IP:           ip,
		LastLoginIP:  ip,
		Purchased:    []string{},
		SecurityQ:    securityQ,
		SecurityA:    s.HashPassword(strings.TrimSpace(strings.ToLower(securityA))),
	}
	data, err := marshalUser(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.CompareAndSet(ctx, userKey(username), 0, data); err != nil {
		if kv.IsConflict(err) {
			return nil, fmt.Errorf("%w: user %q already exists", common.ErrConflict, username)
		}
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	return user, nil
}

// Authenticate verifies credentials, rotates the session id and records the
// login IP. Bad credentials and banned accounts both come back as
// common.ErrUnauthorized; the caller records the failure against the login
// rate-limit category.
func (s *Service) Authenticate(ctx context.Context, username, password, ip string) (*models.User, error) {
	user, err := s.Get(ctx, username)
	if kv.IsNotFound(err) {
		return nil, common.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash != s.HashPassword(password) {
		return nil, common.ErrUnauthorized
	}
	if user.IsBanned {
		return nil, fmt.Errorf("%w: account suspended", common.ErrUnauthorized)
	}

	user.SessionID = uuid.NewString()
	user.LastLoginIP = ip
	if err := s.put(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// BySession resolves a session cookie to its live user. Stale sessions and
// banned accounts come back as common.ErrUnauthorized.
func (s *Service) BySession(ctx context.Context, username, sessionID string) (*models.User, error) {
	if username == "" || sessionID == "" {
		return nil, common.ErrUnauthorized
	}
	user, err := s.Get(ctx, username)
	if kv.IsNotFound(err) {
		return nil, common.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if user.SessionID == "" || user.SessionID != sessionID || user.IsBanned {
		return nil, common.ErrUnauthorized
	}
	return user, nil
}

// Get loads a user record; common.ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := kv.GetJSON(ctx, s.store, userKey(username), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ToggleFavorite flips the movie on the user's favorites list and reports the
// new state. Plain read-modify-write; concurrent toggles are last-writer-wins.
func (s *Service) ToggleFavorite(ctx context.Context, username, movieID string) (bool, error) {
	user, err := s.Get(ctx, username)
	if err != nil {
		return false, err
	}
	if user.HasFavorite(movieID) {
		kept := user.Favorites[:0]
		for _, id := range user.Favorites {
			if id != movieID {
				kept = append(kept, id)
			}
		}
		user.Favorites = kept
	} else {
		user.Favorites = append(user.Favorites, movieID)
	}
	if err := s.put(ctx, user); err != nil {
		return false, err
	}
	return user.HasFavorite(movieID), nil
}

// SetBanned marks or unmarks an account as banned. Last-writer-wins.
func (s *Service) SetBanned(ctx context.Context, username string, banned bool) error {
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	user.IsBanned = banned
	return s.put(ctx, user)
}

// Credit adds coins to an account, the approval path for top-up requests.
func (s *Service) Credit(ctx context.Context, username string, coins int64) error {
	if coins <= 0 {
		return fmt.Errorf("%w: non-positive credit", common.ErrInvalidInput)
	}
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	user.Coins += coins
	if err := s.put(ctx, user); err != nil {
		return err
	}
	s.audit(ctx, "credit", fmt.Sprintf("%s credited %d coins", username, coins))
	return nil
}

// AddVip extends the user's personal VIP window by the given days, counting
// from the later of now and the current expiry.
func (s *Service) AddVip(ctx context.Context, username string, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: non-positive vip days", common.ErrInvalidInput)
	}
	user, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	base := s.now().UnixMilli()
	if user.ExpiryDate != nil && *user.ExpiryDate > base {
		base = *user.ExpiryDate
	}
	expiry := base + int64(days)*millisPerDay
	user.ExpiryDate = &expiry
	if err := s.put(ctx, user); err != nil {
		return err
	}
	s.audit(ctx, "add_vip", fmt.Sprintf("%s granted %d vip days", username, days))
	return nil
}

// IsPremium reports whether the user currently has subscription access,
// either through the global VIP window or a personal expiry in the future.
func (s *Service) IsPremium(user *models.User, config *models.AppConfig) bool {
	if user == nil {
		return false
	}
	now := s.now().UnixMilli()
	if config != nil && config.GlobalVipExpiry > now {
		return true
	}
	return user.ExpiryDate != nil && *user.ExpiryDate > now
}

func (s *Service) put(ctx context.Context, user *models.User) error {
	if err := kv.PutJSON(ctx, s.store, userKey(user.Username), user); err != nil {
		return fmt.Errorf("save user %s: %w", user.Username, err)
	}
	return nil
}

func marshalUser(user *models.User) ([]byte, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user %s: %w", user.Username, err)
	}
	return data, nil
}

func unmarshalUser(entry *kv.Entry, user *models.User) error {
	if err := json.Unmarshal(entry.Value, user); err != nil {
		return fmt.Errorf("unmarshal user %s: %w", entry.Key, err)
	}
	return nil
}

func unmarshalValue(data []byte, out any) error { return json.Unmarshal(data, out) }

// audit appends an admin log entry; failures are logged and swallowed, the
// triggering operation already succeeded.
func (s *Service) audit(ctx context.Context, action, details string) {
	entry := models.AdminLog{
		ID:        uuid.NewString(),
		Action:    action,
		Details:   details,
		Timestamp: s.now().UnixMilli(),
	}
	key := kv.K(PrefixAdminLogs, kv.TimePart(entry.Timestamp), entry.ID)
	if err := kv.PutJSON(ctx, s.store, key, entry, kv.WithTTL(auditLogTTL)); err != nil {
		s.log.Warn(ctx, "audit log write failed", "action", action, "error", err)
	}
}

// RecentLogs returns the newest audit entries, up to n.
func (s *Service) RecentLogs(ctx context.Context, n int) ([]models.AdminLog, error) {
	if n <= 0 {
		n = 100
	}
	entries, err := s.store.List(ctx, kv.ListOptions{
		Prefix: kv.K(PrefixAdminLogs), Reverse: true, Limit: n,
	})
	if err != nil {
		return nil, fmt.Errorf("admin logs: %w", err)
	}
	logs := make([]models.AdminLog, 0, len(entries))
	for _, e := range entries {
		var l models.AdminLog
		if err := json.Unmarshal(e.Value, &l); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// BanIP records a banned client address; the HTTP layer checks it per request.
func (s *Service) BanIP(ctx context.Context, ip string) error {
	if err := kv.PutJSON(ctx, s.store, kv.K(PrefixBannedIPs, ip), true); err != nil {
		return fmt.Errorf("ban ip %s: %w", ip, err)
	}
	return nil
}

func (s *Service) UnbanIP(ctx context.Context, ip string) error {
	if err := s.store.Delete(ctx, kv.K(PrefixBannedIPs, ip)); err != nil {
		return fmt.Errorf("unban ip %s: %w", ip, err)
	}
	return nil
}

// IsIPBanned reports whether the address is on the ban list. Unknown
// addresses never are.
func (s *Service) IsIPBanned(ctx context.Context, ip string) (bool, error) {
	var banned bool
	err := kv.GetJSON(ctx, s.store, kv.K(PrefixBannedIPs, ip), &banned)
	if kv.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return banned, nil
}
