package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/lingvocast/ingest-worker/internal/config"
)

// PackageHLS transcodes inputPath into one fMP4 rendition ladder under
// outputDir and writes a synthesized master playlist. Returns the master
// playlist path.
func (t *Toolchain) PackageHLS(ctx context.Context, inputPath, outputDir string, cfg config.HLS, md Metadata) (string, error) {
	if len(cfg.Renditions) == 0 {
		return "", fmt.Errorf("no hls renditions configured")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create hls output dir: %w", err)
	}

	frameRate := cfg.TargetFrameRate
	if md.FrameRate > 0 && md.FrameRate < float64(frameRate) {
		// Never upsample a low-frame-rate source.
		frameRate = int(md.FrameRate)
	}

	for _, r := range cfg.Renditions {
		if err := t.packageRendition(ctx, inputPath, outputDir, cfg, r, frameRate, md); err != nil {
			return "", fmt.Errorf("failed to package rendition %s: %w", r.Name, err)
		}
		if err := rewriteInitURI(filepath.Join(outputDir, r.Name+".m3u8")); err != nil {
			return "", err
		}
	}

	masterPath := filepath.Join(outputDir, cfg.MasterPlaylistName)
	if err := writeMasterPlaylist(masterPath, cfg.Renditions, frameRate, md); err != nil {
		return "", err
	}
	return masterPath, nil
}

func (t *Toolchain) packageRendition(ctx context.Context, inputPath, outputDir string, cfg config.HLS, r config.Rendition, frameRate int, md Metadata) error {
	width, height := r.Width, r.Height
	if md.Width > 0 && md.Width < width {
		// Downscale only.
		width, height = md.Width, md.Height
	}
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2",
		width, height,
	)

	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", cfg.VideoCodec,
		"-preset", cfg.Preset,
		"-vf", scale,
		"-b:v", r.VideoBitrate,
		"-maxrate", r.VideoBitrate,
		"-bufsize", doubleBitrate(r.VideoBitrate),
		"-r", strconv.Itoa(frameRate),
		"-g", strconv.Itoa(cfg.KeyframeInterval),
		"-keyint_min", strconv.Itoa(cfg.KeyframeInterval),
		"-sc_threshold", "0",
		"-c:a", cfg.AudioCodec,
		"-b:a", r.AudioBitrate,
		"-hls_time", strconv.Itoa(cfg.SegmentDuration),
		"-hls_playlist_type", cfg.PlaylistType,
		"-hls_segment_type", "fmp4",
		"-hls_fmp4_init_filename", r.Name+"_init.mp4",
		"-hls_segment_filename", filepath.Join(outputDir, r.Name+"_%03d.m4s"),
		"-hls_flags", "independent_segments",
		filepath.Join(outputDir, r.Name+".m3u8"),
	}
	_, err := t.run(ctx, t.ffmpeg, args...)
	return err
}

// rewriteInitURI strips any directory prefix ffmpeg put into the EXT-X-MAP
// URI so the playlist stays relocatable next to its segments.
func rewriteInitURI(playlistPath string) error {
	data, err := os.ReadFile(playlistPath)
	if err != nil {
		return fmt.Errorf("failed to read rendition playlist: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if !strings.HasPrefix(line, "#EXT-X-MAP:") {
			continue
		}
		const marker = `URI="`
		start := strings.Index(line, marker)
		if start < 0 {
			continue
		}
		start += len(marker)
		end := strings.Index(line[start:], `"`)
		if end < 0 {
			continue
		}
		uri := line[start : start+end]
		base := filepath.Base(uri)
		if base != uri {
			lines[i] = line[:start] + base + line[start+end:]
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return os.WriteFile(playlistPath, []byte(strings.Join(lines, "\n")), 0o644)
}

// writeMasterPlaylist synthesizes the master playlist from the configured
// ladder; ffmpeg is invoked per rendition so it never produces one itself.
func writeMasterPlaylist(path string, renditions []config.Rendition, frameRate int, md Metadata) error {
	master := m3u8.NewMasterPlaylist()
	master.SetIndependentSegments(true)

	for _, r := range renditions {
		width, height := r.Width, r.Height
		if md.Width > 0 && md.Width < width {
			width, height = md.Width, md.Height
		}
		bandwidth := parseBitrate(r.VideoBitrate) + parseBitrate(r.AudioBitrate)
		master.Append(r.Name+".m3u8", nil, m3u8.VariantParams{
			Bandwidth:  uint32(bandwidth),
			Resolution: fmt.Sprintf("%dx%d", width, height),
			Name:       r.Name,
			FrameRate:  float64(frameRate),
		})
	}

	return os.WriteFile(path, master.Encode().Bytes(), 0o644)
}

// parseBitrate converts ffmpeg bitrate notation ("2800k", "2M", "128000") to
// bits per second.
func parseBitrate(s string) int {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := 1
	switch {
	case strings.HasSuffix(s, "k"):
		mult = 1000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult = 1000000
		s = strings.TrimSuffix(s, "m")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n * mult
}

func doubleBitrate(s string) string {
	bits := parseBitrate(s)
	if bits <= 0 {
		return s
	}
	return strconv.Itoa(bits*2/1000) + "k"
}
