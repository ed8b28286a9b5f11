package model

import "time"

// Roles carried in the JWT role claim and the users.role column.
const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleModerator || r == RoleAdmin
}

// IsStaff reports whether the role may resolve reports.
func IsStaff(r string) bool { return r == RoleModerator || r == RoleAdmin }

// User represents an account together with its game profile and
// reputation fields, as stored in the `users` table.
//
// Fields:
//  ID             – primary key identifier.
//  Email          – unique login email.
//  PasswordHash   – bcrypt hash, never serialized.
//  Role           – USER, MODERATOR or ADMIN.
//  Nickname       – display name.
//  GameNickname   – in-game character/account name.
//  GameServer     – game server (nullable).
//  Verified       – set by staff after checking the game account.
//  HonorScore     – reputation, never below zero.
//  NoShowCount    – number of no-shows recorded against the user.
//  SuspendedUntil – active suspension end (nullable).
type User struct {
	ID             uint64     `json:"id"`                        // users.id
	Email          string     `json:"email"`                     // users.email
	PasswordHash   string     `json:"-"`                         // users.password_hash
	Role           string     `json:"role"`                      // users.role
	Nickname       string     `json:"nickname"`                  // users.nickname
	GameNickname   string     `json:"game_nickname"`             // users.game_nickname
	GameServer     *string    `json:"game_server,omitempty"`     // users.game_server (nullable)
	Verified       bool       `json:"verified"`                  // users.verified
	HonorScore     int32      `json:"honor_score"`               // users.honor_score
	NoShowCount    uint32     `json:"noshow_count"`              // users.noshow_count
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"` // users.suspended_until (nullable)
	CreatedAt      time.Time  `json:"created_at"`                // users.created_at
	UpdatedAt      time.Time  `json:"updated_at"`                // users.updated_at
}

// Suspended reports whether the user is suspended at now.
func (u User) Suspended(now time.Time) bool {
	return u.SuspendedUntil != nil && u.SuspendedUntil.After(now)
}

// Active reports whether the user may create sessions, reserve, bid or
// report: verified and not suspended.
func (u User) Active(now time.Time) bool {
	return u.Verified && !u.Suspended(now)
}

// FloorHonor subtracts penalty from score without going below zero.
func FloorHonor(score, penalty int32) int32 {
	if penalty < 0 {
		penalty = 0
	}
	if score <= penalty {
		return 0
	}
	return score - penalty
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
