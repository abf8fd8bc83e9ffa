//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/beatok/backend/pkg/beatok"
	"github.com/beatok/backend/pkg/models"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <audio_file>...",
	Short: "Print the audio fingerprint of one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extractor, _, err := newFingerprinter()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, path := range args {
			res := extractor.ExtractFile(path)
			if !res.OK() {
				fmt.Fprintf(out, "%s %s  %s %v\n", failMark("✗"), res.Hex(), path, dim(res.Err()))
				continue
			}
			note := ""
			if res.Degenerate() {
				note = dim(" (silent, never compared)")
			}
			fmt.Fprintf(out, "%s %s  %s%s\n", okMark("✓"), res.Hex(), path, note)
		}
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <fingerprint_a> <fingerprint_b>",
	Short: "Compare two stored fingerprints",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, comparator, err := newFingerprinter()
		if err != nil {
			return err
		}

		dup, similarity := comparator.Compare(args[0], args[1])
		verdict := okMark("distinct")
		if dup {
			verdict = failMark("duplicate")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "similarity %.4f (threshold %.2f): %s\n",
			similarity, comparator.Threshold(), verdict)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Upload a beat, rejecting duplicate audio",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := beatok.CreateBeatInput{}
		in.Name, _ = cmd.Flags().GetString("name")
		in.Genre, _ = cmd.Flags().GetString("genre")
		in.Tempo, _ = cmd.Flags().GetInt("tempo")
		in.Key, _ = cmd.Flags().GetString("key")
		in.OwnerName, _ = cmd.Flags().GetString("owner")
		in.OwnerID, _ = cmd.Flags().GetString("owner-id")

		var err error
		mp3Path, _ := cmd.Flags().GetString("mp3")
		if in.MP3, err = readUpload(mp3Path); err != nil {
			return err
		}
		wavPath, _ := cmd.Flags().GetString("wav")
		if in.WAV, err = readUpload(wavPath); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		svc, err := newService(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		beat, err := svc.CreateBeat(ctx, in)
		var dup *beatok.DuplicateError
		if errors.As(err, &dup) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Rejected: audio matches %d existing beat(s)\n", failMark("✗"), dup.Count())
			for _, m := range dup.Matches {
				fmt.Fprintf(out, "   %q by %s  similarity %.4f  %s\n", m.BeatName, m.OwnerName, m.Similarity, dim(m.BeatID))
			}
			return dup
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Uploaded beat, awaiting moderation\n", okMark("✓"))
		printBeat(cmd.OutOrStdout(), beat)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List beats, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		ownerID, _ := cmd.Flags().GetString("owner-id")
		limit, _ := cmd.Flags().GetInt("limit")
		skip, _ := cmd.Flags().GetInt("skip")

		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		beats, total, err := svc.ListBeats(cmd.Context(), beatok.ListOptions{
			Status:  models.Status(status),
			OwnerID: ownerID,
			Skip:    skip,
			Limit:   limit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(beats) == 0 {
			fmt.Fprintln(out, "No beats found")
			return nil
		}
		fmt.Fprintf(out, "Showing %d of %d beat(s):\n\n", len(beats), total)
		for i := range beats {
			b := &beats[i]
			fp := b.AudioFingerprint
			if fp == "" {
				fp = dim("no fingerprint")
			}
			fmt.Fprintf(out, "%-36s  %-10s  %-24q %s  %s  %s\n",
				b.ID, b.Status, b.Name, b.OwnerName, fp, dim(humanize.Time(b.CreatedAt)))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <beat_id>",
	Short: "Show one beat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		beat, err := svc.GetBeat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printBeat(cmd.OutOrStdout(), beat)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <beat_id>",
	Short: "Publish a beat awaiting moderation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moderate(cmd, args[0], beatok.Service.ApproveBeat)
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <beat_id>",
	Short: "Deny a beat awaiting moderation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moderate(cmd, args[0], beatok.Service.DenyBeat)
	},
}

func moderate(cmd *cobra.Command, id string, action func(beatok.Service, context.Context, string) (*models.Beat, error)) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	beat, err := action(svc, cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %q is now %s\n", okMark("✓"), beat.Name, beat.Status)
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <beat_id>",
	Short: "Delete a beat and its audio files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		beat, err := svc.GetBeat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := svc.DeleteBeat(cmd.Context(), beat.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %q by %s (%s freed)\n",
			okMark("✓"), beat.Name, beat.OwnerName, humanize.Bytes(uint64(beat.Size)))
		return nil
	},
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Fingerprint stored beats that have no fingerprint yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.Rescan(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scanned %d: %s updated, %d skipped, %s conflicting, %s failed\n",
			report.Scanned, okMark(report.Updated), report.Skipped, failMark(len(report.Conflicts)), failMark(report.Failed))
		for _, c := range report.Conflicts {
			fmt.Fprintf(out, "%s %q %s\n", failMark("✗"), c.BeatName, dim(c.BeatID))
			for _, m := range c.Matches {
				fmt.Fprintf(out, "   matches %q by %s  similarity %.4f  %s\n", m.BeatName, m.OwnerName, m.Similarity, dim(m.BeatID))
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show beat counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Beats: %s (scheme %s, threshold %.2f)\n",
			humanize.Comma(stats.TotalBeats), stats.Scheme, stats.Threshold)
		for _, st := range []models.Status{models.StatusModerated, models.StatusAvailable, models.StatusDenied, models.StatusSold} {
			fmt.Fprintf(out, "   %-10s %s\n", st, humanize.Comma(stats.ByStatus[st]))
		}
		return nil
	},
}

func readUpload(path string) (*beatok.Upload, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &beatok.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func printBeat(out io.Writer, b *models.Beat) {
	fmt.Fprintf(out, "   ID:          %s\n", b.ID)
	fmt.Fprintf(out, "   Name:        %s\n", b.Name)
	fmt.Fprintf(out, "   Owner:       %s\n", b.OwnerName)
	fmt.Fprintf(out, "   Genre:       %s, %d BPM, %s\n", b.Genre, b.Tempo, b.Key)
	fmt.Fprintf(out, "   Status:      %s\n", b.Status)
	fmt.Fprintf(out, "   Size:        %s\n", humanize.Bytes(uint64(b.Size)))
	if b.Duration > 0 {
		secs := int(b.Duration)
		fmt.Fprintf(out, "   Duration:    %d:%02d\n", secs/60, secs%60)
	}
	if b.AudioFingerprint != "" {
		fmt.Fprintf(out, "   Fingerprint: %s\n", b.AudioFingerprint)
	} else {
		fmt.Fprintf(out, "   Fingerprint: %s\n", dim("none"))
	}
}
