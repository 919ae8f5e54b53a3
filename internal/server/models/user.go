package models

// User is an account record keyed by username. Balance and ownership are
// mutated only through the purchase compare-and-set path; the other fields
// follow plain read-modify-write.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	// ExpiryDate is a millisecond timestamp; nil means no personal VIP window.
	ExpiryDate  *int64   `json:"expiryDate"`
	Favorites   []string `json:"favorites"`
	SessionID   string   `json:"sessionId,omitempty"`
	IP          string   `json:"ip,omitempty"`
	LastLoginIP string   `json:"lastLoginIp,omitempty"`
	IsBanned    bool     `json:"isBanned,omitempty"`
	Coins       int64    `json:"coins,omitempty"`
	Purchased   []string `json:"purchased,omitempty"`
	SecurityQ   string   `json:"securityQ,omitempty"`
	SecurityA   string   `json:"securityA,omitempty"`
}

// Owns reports whether the user already purchased the movie.
func (u *User) Owns(movieID string) bool {
	for _, id := range u.Purchased {
		if id == movieID {
			return true
		}
	}
	return false
}

// HasFavorite reports whether the movie is on the user's favorites list.
func (u *User) HasFavorite(movieID string) bool {
	for _, id := range u.Favorites {
		if id == movieID {
			return true
		}
	}
	return false
}

// VipKey is a one-shot redeemable code. Type "vip" extends the expiry window
// by Days; type "coin" credits Value coins.
type VipKey struct {
	Code  string `json:"code"`
	Days  int    `json:"days"`
	Type  string `json:"type,omitempty"`
	Value int64  `json:"value,omitempty"`
}

// AdminLog is an audit entry kept under a 30-day TTL.
type AdminLog struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}
