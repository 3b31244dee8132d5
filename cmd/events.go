/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/voxscribe/apiserver/config"
	"github.com/voxscribe/apiserver/internal/logging"
	"github.com/voxscribe/apiserver/internal/mq"
	"github.com/voxscribe/apiserver/internal/storage"
)

var purgeOrphans bool

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect application events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events from the configured message backend",
	Long: `Prints every event published on MQ_CHANNEL until interrupted.

With --purge-orphans, audio objects reported by audio.orphaned events are
deleted from object storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.MQ.Backend == "" || cfg.MQ.Backend == "none" {
			return errors.New("MQ_BACKEND is not set; events are disabled")
		}
		log := logging.New(cfg.LogLevel, true)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Connect(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		var audio *storage.Storage
		if purgeOrphans {
			audio, err = storage.New(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
		}

		log.Info().Str("channel", queue.Channel()).Bool("purge_orphans", purgeOrphans).Msg("tailing events")
		err = queue.Consume(ctx, func(ctx context.Context, ev mq.Event) error {
			logEvent(log, ev)
			if audio == nil {
				return nil
			}
			return purgeOrphan(ctx, audio, ev, log)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().BoolVar(&purgeOrphans, "purge-orphans", false, "delete audio reported as orphaned")
}

type objectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// purgeOrphan deletes the object named by an audio.orphaned event. An object
// that is already gone counts as purged so the event is not redelivered.
func purgeOrphan(ctx context.Context, audio objectDeleter, ev mq.Event, log zerolog.Logger) error {
	if ev.Type != mq.EventAudioOrphaned || ev.AudioPath == "" {
		return nil
	}
	err := audio.Delete(ctx, ev.AudioPath)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		log.Info().Str("audio_path", ev.AudioPath).Msg("orphaned audio already removed")
		return nil
	case err != nil:
		log.Error().Err(err).Str("audio_path", ev.AudioPath).Msg("purge orphaned audio")
		return err
	}
	log.Info().Str("audio_path", ev.AudioPath).Msg("orphaned audio purged")
	return nil
}

func logEvent(log zerolog.Logger, ev mq.Event) {
	entry := log.Info().
		Str("type", ev.Type).
		Str("user_id", ev.UserID).
		Time("occurred_at", ev.OccurredAt)
	if ev.TranscriptionID != "" {
		entry = entry.Str("transcription_id", ev.TranscriptionID)
	}
	if ev.AudioPath != "" {
		entry = entry.Str("audio_path", ev.AudioPath)
	}
	if ev.Reason != "" {
		entry = entry.Str("reason", ev.Reason)
	}
	entry.Msg("event")
}
