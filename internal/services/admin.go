package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/voxscribe/apiserver/internal/mq"
	"github.com/voxscribe/apiserver/types"
)

// AdminService implements the admin console operations. Callers must have
// checked the admin role already.
type AdminService struct {
	profiles       ProfileRepository
	transcriptions TranscriptionRepository
	events         mq.Publisher
	log            zerolog.Logger
}

func NewAdminService(profiles ProfileRepository, transcriptions TranscriptionRepository, events mq.Publisher, log zerolog.Logger) *AdminService {
	return &AdminService{
		profiles:       profiles,
		transcriptions: transcriptions,
		events:         events,
		log:            log.With().Str("component", "admin").Logger(),
	}
}

// GetAllUsers lists every profile, newest first.
func (s *AdminService) GetAllUsers(ctx context.Context) ([]types.Profile, error) {
	users, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fail("Error loading users", err)
	}
	return users, nil
}

// GetAllTranscriptions lists every transcription with its owner's email, newest first.
func (s *AdminService) GetAllTranscriptions(ctx context.Context) ([]types.AnnotatedTranscription, error) {
	items, err := s.transcriptions.ListAll(ctx)
	if err != nil {
		return nil, fail("Error loading transcriptions", err)
	}
	return items, nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, userID string, role types.Role) (types.Profile, error) {
	if !role.Valid() {
		return types.Profile{}, ErrInvalidRole
	}
	profile, err := s.profiles.UpdateRole(ctx, userID, role)
	if err != nil {
		return types.Profile{}, fail("Error updating user role", err)
	}
	s.log.Info().Str("user_id", userID).Str("role", string(role)).Msg("role updated")
	return profile, nil
}

// ToggleUserRole reads the current role and writes the other one.
// Concurrent toggles are last-write-wins.
func (s *AdminService) ToggleUserRole(ctx context.Context, userID string) (types.Profile, error) {
	role, err := s.profiles.GetRole(ctx, userID)
	if err != nil {
		return types.Profile{}, fail("Error updating user role", err)
	}
	return s.UpdateUserRole(ctx, userID, role.Toggle())
}

// DeleteUser removes the user's transcriptions and then the profile. The
// profile is left untouched when the first step fails.
func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	removed, err := s.transcriptions.DeleteByUser(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("delete transcriptions failed")
		return fail("Error deleting user", err)
	}
	if err := s.profiles.Delete(ctx, userID); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Int64("transcriptions_removed", removed).Msg("delete profile failed")
		return fail("Error deleting user", err)
	}

	s.log.Info().Str("user_id", userID).Int64("transcriptions_removed", removed).Msg("user deleted")
	emit(ctx, s.events, s.log, mq.Event{Type: mq.EventUserDeleted, UserID: userID})
	return nil
}
