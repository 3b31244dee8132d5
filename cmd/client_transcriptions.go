/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/voxscribe/apiserver/internal/client"
	"github.com/voxscribe/apiserver/types"
)

var audioOutput string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an audio file and print its transcription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() > client.MaxAudioSize {
			return fmt.Errorf("%w (%s)", client.ErrFileTooLarge, humanize.IBytes(uint64(info.Size())))
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Uploading %s (%s)...\n", filepath.Base(args[0]), humanize.IBytes(uint64(info.Size())))
		resp, err := c.Upload(cmd.Context(), filepath.Base(args[0]), info.Size(), f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Transcription.TextContent)
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved as %s (%d transcriptions total)\n", resp.Transcription.ID, len(resp.Items))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your transcriptions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		items, err := c.ListTranscriptions(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transcriptions yet")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTranscriptions(items))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one of your transcriptions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		if err := c.DeleteTranscription(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio <id>",
	Short: "Download the audio behind a transcription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSignedIn(c); err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if audioOutput != "" && audioOutput != "-" {
			f, err := os.Create(audioOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		n, err := c.DownloadAudio(cmd.Context(), args[0], w)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", humanize.IBytes(uint64(n)))
		return nil
	},
}

func init() {
	clientCmd.AddCommand(uploadCmd, listCmd, deleteCmd, audioCmd)
	audioCmd.Flags().StringVarP(&audioOutput, "output", "o", "", "write to file instead of stdout")
}

func renderTranscriptions(items []types.Transcription) string {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		rows = append(rows, []string{t.ID, filepath.Base(t.AudioPath), truncate(t.TextContent, 50), when(t.CreatedAt)})
	}
	return renderTable([]string{"ID", "AUDIO", "TEXT", "CREATED"}, rows, nil)
}
