package media

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
)

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	ACodec         string  `json:"acodec"`
	VCodec         string  `json:"vcodec"`
	Protocol       string  `json:"protocol"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

type ytdlpThumbnail struct {
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Preference int    `json:"preference"`
}

type ytdlpInfo struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Uploader     string           `json:"uploader"`
	Channel      string           `json:"channel"`
	Duration     float64          `json:"duration"`
	Thumbnail    string           `json:"thumbnail"`
	Thumbnails   []ytdlpThumbnail `json:"thumbnails"`
	WebpageURL   string           `json:"webpage_url"`
	ExtractorKey string           `json:"extractor_key"`
	UploadDate   string           `json:"upload_date"`
	ViewCount    int64            `json:"view_count"`
	LikeCount    int64            `json:"like_count"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	FPS          float64          `json:"fps"`
	VCodec       string           `json:"vcodec"`
	ACodec       string           `json:"acodec"`
	Ext          string           `json:"ext"`
	Formats      []ytdlpFormat    `json:"formats"`
}

type preset struct {
	minHeight int
	label     string
	badge     string
}

var videoPresets = []preset{
	{minHeight: 2160, label: "4K", badge: "Ultra HD"},
	{minHeight: 1080, label: "1080p", badge: "Full HD"},
	{minHeight: 720, label: "720p", badge: "HD"},
}

const (
	audioLabel     = "Audio only"
	audioBadge     = "MP3"
	maxRawFallback = 3
)

// ParseMetadata decodes the extractor's -J output and normalizes it.
func ParseMetadata(raw []byte) (*models.Metadata, []models.Rendition, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, nil, models.NewMetadataError("could not read video information", truncate(string(raw), 512), err)
	}
	md, videos, audio := normalize(&info)
	presets := BuildPresets(videos, audio)
	if len(presets) == 0 {
		return nil, nil, models.NewMetadataError("no downloadable formats found", "", nil)
	}
	return md, presets, nil
}

func normalize(info *ytdlpInfo) (*models.Metadata, []models.Rendition, *models.Rendition) {
	md := &models.Metadata{
		ID:            info.ID,
		Title:         strings.TrimSpace(info.Title),
		Uploader:      firstNonEmpty(info.Uploader, info.Channel),
		Duration:      info.Duration,
		DurationLabel: HumanDuration(info.Duration),
		Thumbnail:     pickThumbnail(info),
		WebpageURL:    info.WebpageURL,
		Specs: models.TechnicalSpecs{
			Width:      info.Width,
			Height:     info.Height,
			FPS:        info.FPS,
			VCodec:     info.VCodec,
			ACodec:     info.ACodec,
			Ext:        info.Ext,
			Extractor:  info.ExtractorKey,
			UploadDate: info.UploadDate,
			ViewCount:  info.ViewCount,
			LikeCount:  info.LikeCount,
		},
	}
	if md.Title == "" {
		md.Title = "Untitled"
	}

	audioFormat := bestAudio(info.Formats)
	var audioSize int64
	if audioFormat != nil {
		audioSize = estimateSize(*audioFormat, info.Duration)
	}

	byHeight := make(map[int]ytdlpFormat)
	for _, f := range info.Formats {
		if !isVideo(f) {
			continue
		}
		if cur, ok := byHeight[f.Height]; !ok || betterVideo(f, cur) {
			byHeight[f.Height] = f
		}
	}
	videos := make([]models.Rendition, 0, len(byHeight))
	for _, f := range byHeight {
		videos = append(videos, videoRendition(f, info.Duration, audioSize))
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Height > videos[j].Height })

	var audio *models.Rendition
	if audioFormat != nil {
		r := audioRendition(*audioFormat, audioSize)
		audio = &r
	}

	md.Formats = append(md.Formats, videos...)
	if audio != nil {
		md.Formats = append(md.Formats, *audio)
	}
	return md, videos, audio
}

// BuildPresets picks, for each threshold, the tallest rendition at or above it and
// below the next higher threshold. When no threshold matches, the three tallest raw
// renditions are offered instead. The audio rendition, if any, always comes last.
func BuildPresets(videos []models.Rendition, audio *models.Rendition) []models.Rendition {
	var out []models.Rendition
	ceiling := math.MaxInt
	for _, p := range videoPresets {
		var pick *models.Rendition
		for i := range videos {
			v := videos[i]
			if v.Height < p.minHeight || v.Height >= ceiling {
				continue
			}
			if pick == nil || v.Height > pick.Height {
				pick = &videos[i]
			}
		}
		ceiling = p.minHeight
		if pick == nil {
			continue
		}
		r := *pick
		r.Label = p.label
		r.Badge = p.badge
		out = append(out, r)
	}
	if len(out) == 0 {
		for i := 0; i < len(videos) && i < maxRawFallback; i++ {
			out = append(out, videos[i])
		}
	}
	if audio != nil {
		r := *audio
		r.Label = audioLabel
		r.Badge = audioBadge
		out = append(out, r)
	}
	return out
}

func isVideo(f ytdlpFormat) bool {
	if f.Height <= 0 || f.VCodec == "none" || f.FormatID == "" {
		return false
	}
	if f.Ext == "mhtml" || strings.Contains(strings.ToLower(f.FormatNote), "storyboard") {
		return false
	}
	return true
}

func isAudioOnly(f ytdlpFormat) bool {
	return f.FormatID != "" && (f.VCodec == "none" || (f.VCodec == "" && f.Height == 0)) &&
		f.ACodec != "none" && f.ACodec != ""
}

func betterVideo(a, b ytdlpFormat) bool {
	aMuxed, bMuxed := hasAudio(a), hasAudio(b)
	if a.FPS != b.FPS {
		return a.FPS > b.FPS
	}
	if a.TBR != b.TBR {
		return a.TBR > b.TBR
	}
	return aMuxed && !bMuxed
}

func hasAudio(f ytdlpFormat) bool {
	return f.ACodec != "" && f.ACodec != "none"
}

func bestAudio(formats []ytdlpFormat) *ytdlpFormat {
	var best *ytdlpFormat
	for i := range formats {
		f := formats[i]
		if !isAudioOnly(f) {
			continue
		}
		if best == nil || audioRate(f) > audioRate(*best) {
			best = &formats[i]
		}
	}
	return best
}

func audioRate(f ytdlpFormat) float64 {
	if f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

func videoRendition(f ytdlpFormat, duration float64, audioSize int64) models.Rendition {
	size := estimateSize(f, duration)
	selector := fmt.Sprintf("%s/best[height<=%d]", f.FormatID, f.Height)
	if !hasAudio(f) {
		selector = fmt.Sprintf("%s+bestaudio/%s/best[height<=%d]", f.FormatID, f.FormatID, f.Height)
		if size > 0 {
			size += audioSize
		}
	}
	label := fmt.Sprintf("%dp", f.Height)
	if f.FPS > 30 {
		label = fmt.Sprintf("%dp%d", f.Height, int(f.FPS+0.5))
	}
	return models.Rendition{
		ID:        f.FormatID,
		Label:     label,
		Kind:      models.RenditionVideo,
		Ext:       "mp4",
		Height:    f.Height,
		Width:     f.Width,
		FPS:       f.FPS,
		VCodec:    f.VCodec,
		ACodec:    f.ACodec,
		Filesize:  size,
		SizeLabel: HumanSize(size),
		Selector:  selector,
	}
}

func audioRendition(f ytdlpFormat, size int64) models.Rendition {
	return models.Rendition{
		ID:        f.FormatID,
		Label:     audioLabel,
		Kind:      models.RenditionAudio,
		Ext:       "mp3",
		ACodec:    f.ACodec,
		Filesize:  size,
		SizeLabel: HumanSize(size),
		Selector:  fmt.Sprintf("%s/bestaudio/best", f.FormatID),
	}
}

func estimateSize(f ytdlpFormat, duration float64) int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	if f.FilesizeApprox > 0 {
		return f.FilesizeApprox
	}
	rate := f.TBR
	if rate <= 0 {
		rate = f.ABR
	}
	if rate > 0 && duration > 0 {
		return int64(rate * 1000 / 8 * duration)
	}
	return 0
}

func pickThumbnail(info *ytdlpInfo) string {
	if info.Thumbnail != "" {
		return info.Thumbnail
	}
	var best *ytdlpThumbnail
	for i := range info.Thumbnails {
		t := &info.Thumbnails[i]
		if t.URL == "" {
			continue
		}
		if best == nil || t.Width*t.Height > best.Width*best.Height ||
			(t.Width*t.Height == best.Width*best.Height && t.Preference > best.Preference) {
			best = t
		}
	}
	if best == nil {
		return ""
	}
	return best.URL
}

// HumanDuration renders seconds as H:MM:SS, or M:SS under an hour.
func HumanDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	total := int(seconds + 0.5)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func HumanSize(bytes int64) string {
	if bytes <= 0 {
		return "unknown"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
