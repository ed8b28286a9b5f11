package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gbus-app/gbus-server/internal/model"
)

const maxNicknameLen = 32

// AccountService manages profiles, barracks and staff user administration.
type AccountService struct {
	repoSet
	deps Deps
}

// ProfileInput is the self-service part of a profile.
type ProfileInput struct {
	Nickname     string
	GameNickname string
	GameServer   string
}

// UpdateProfile stores the caller's profile fields and drops the cached copy.
func (s *AccountService) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) error {
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.GameNickname = strings.TrimSpace(in.GameNickname)
	in.GameServer = strings.TrimSpace(in.GameServer)
	var v ValidationError
	if in.Nickname == "" {
		v.add("nickname", "required")
	} else if utf8.RuneCountInString(in.Nickname) > maxNicknameLen {
		v.add("nickname", "too long")
	}
	if utf8.RuneCountInString(in.GameNickname) > maxCharNameLen {
		v.add("game_nickname", "too long")
	}
	if err := v.errOrNil(); err != nil {
		return err
	}
	var server *string
	if in.GameServer != "" {
		server = &in.GameServer
	}
	if err := s.users.UpdateProfile(ctx, userID, in.Nickname, in.GameNickname, server); err != nil {
		return err
	}
	s.deps.Profiles.Invalidate(ctx, userID)
	return nil
}

// Barrack returns the caller's roster.
func (s *AccountService) Barrack(ctx context.Context, userID uint64) ([]model.BarrackCharacter, error) {
	return s.barracks.ListByUser(ctx, userID)
}

// AddToBarrack appends characters to the caller's roster.  Names already
// on the roster, or repeated in the request, reject the whole batch.
func (s *AccountService) AddToBarrack(ctx context.Context, userID uint64, names []string) ([]model.BarrackCharacter, error) {
	names, err := normalizeNames(names)
	if err != nil {
		return nil, err
	}
	logger := serviceLogger(ctx, s.deps.Logger, "accounts", "add_barrack", "user_id", userID, "count", len(names))
	added, err := s.barracks.AddMany(ctx, userID, names)
	if err != nil {
		logResult(logger, "add barrack", err)
		return nil, err
	}
	return added, nil
}

// RemoveFromBarrack deletes one of the caller's roster entries.
func (s *AccountService) RemoveFromBarrack(ctx context.Context, userID, entryID uint64) error {
	return s.barracks.Delete(ctx, entryID, userID)
}

// ListUsers returns accounts for the admin console.
func (s *AccountService) ListUsers(ctx context.Context, unverifiedOnly bool) ([]model.User, error) {
	return s.users.List(ctx, unverifiedOnly)
}

// SetVerified marks a user as verified or not.
func (s *AccountService) SetVerified(ctx context.Context, staffID, userID uint64, verified bool) error {
	logger := serviceLogger(ctx, s.deps.Logger, "accounts", "verify", "staff_id", staffID, "user_id", userID)
	if err := s.users.SetVerified(ctx, userID, verified); err != nil {
		logResult(logger, "verify user", err)
		return err
	}
	logger.Info("user verification changed", "verified", verified)
	s.deps.Profiles.Invalidate(ctx, userID)
	return nil
}

// SetRole changes a user's role.  Only admins reach this operation.
func (s *AccountService) SetRole(ctx context.Context, adminID, userID uint64, role string) error {
	role = strings.ToUpper(strings.TrimSpace(role))
	if !model.ValidRole(role) {
		var v ValidationError
		v.add("role", "must be USER, MODERATOR or ADMIN")
		return &v
	}
	if adminID == userID && role != model.RoleAdmin {
		var v ValidationError
		v.add("role", "admins cannot demote themselves")
		return &v
	}
	logger := serviceLogger(ctx, s.deps.Logger, "accounts", "set_role", "admin_id", adminID, "user_id", userID)
	if err := s.users.SetRole(ctx, userID, role); err != nil {
		logResult(logger, "set role", err)
		return err
	}
	logger.Info("user role changed", "role", role)
	s.deps.Profiles.Invalidate(ctx, userID)
	return nil
}
