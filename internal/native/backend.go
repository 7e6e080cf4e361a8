package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"avidlp/youtube-server/internal/extractor"
)

// ErrNoProgressiveFormat 没有同时包含音视频的格式 (原生后端不做合并)
var ErrNoProgressiveFormat = fmt.Errorf("no progressive video+audio format available: %w", extractor.ErrExtraction)

var (
	extPattern    = regexp.MustCompile(`\[ext=([a-z0-9]+)\]`)
	heightPattern = regexp.MustCompile(`\[height<=(\d+)\]`)
	unsafePath    = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")
)

// videoClient YouTube 客户端接口, *youtube.Client 满足该接口
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

var _ videoClient = (*youtube.Client)(nil)

// Backend 基于 kkdai/youtube 的进程内提取后端
type Backend struct {
	client videoClient
	logger *zap.Logger
}

// NewBackend 创建原生后端, httpClient 可携带代理和 cookies
func NewBackend(httpClient *http.Client, logger *zap.Logger) *Backend {
	return &Backend{
		client: &youtube.Client{HTTPClient: httpClient},
		logger: logger,
	}
}

// ExtractInfo 获取视频元数据
func (b *Backend) ExtractInfo(ctx context.Context, url string) (*extractor.VideoInfo, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, mapError(err)
	}
	return b.toVideoInfo(ctx, video), nil
}

// Download 下载格式表达式中偏好的容器格式, 只在同时包含音视频的格式中选择
func (b *Backend) Download(ctx context.Context, url string, opts extractor.DownloadOptions) (*extractor.VideoInfo, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, mapError(err)
	}

	ext, maxHeight := parseExpression(opts.Format)
	format := selectProgressive(video.Formats, ext, maxHeight)
	if format == nil {
		return nil, ErrNoProgressiveFormat
	}

	b.logger.Info("starting native download",
		zap.String("video_id", video.ID),
		zap.Int("itag", format.ItagNo),
		zap.String("mime", format.MimeType))

	stream, _, err := b.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, mapError(err)
	}
	defer stream.Close()

	name := unsafePath.Replace(video.Title)
	if strings.TrimSpace(name) == "" {
		name = video.ID
	}
	path := filepath.Join(opts.Dir, name+"."+mimeToExt(format.MimeType))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(file, stream); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to download stream: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close output file: %w", err)
	}

	return b.toVideoInfo(ctx, video), nil
}

// toVideoInfo 转换为统一的元数据结构
func (b *Backend) toVideoInfo(ctx context.Context, video *youtube.Video) *extractor.VideoInfo {
	info := &extractor.VideoInfo{
		ID:             video.ID,
		Title:          video.Title,
		Description:    video.Description,
		Duration:       video.Duration.Seconds(),
		DurationString: durationString(video.Duration),
		Uploader:       video.Author,
		UploaderID:     video.ChannelID,
		ViewCount:      int64(video.Views),
		WebpageURL:     "https://www.youtube.com/watch?v=" + video.ID,
		Formats:        make([]extractor.Format, 0, len(video.Formats)),
	}
	if !video.PublishDate.IsZero() {
		info.UploadDate = video.PublishDate.Format("20060102")
	}
	if n := len(video.Thumbnails); n > 0 {
		info.Thumbnail = video.Thumbnails[n-1].URL
	}

	for i := range video.Formats {
		f := &video.Formats[i]
		streamURL, err := b.client.GetStreamURLContext(ctx, video, f)
		if err != nil {
			b.logger.Debug("failed to resolve stream url", zap.Int("itag", f.ItagNo), zap.Error(err))
			streamURL = f.URL
		}
		vcodec, acodec := splitCodecs(f.MimeType, f.AudioChannels > 0)
		note := f.QualityLabel
		if note == "" {
			note = f.AudioQuality
		}
		info.Formats = append(info.Formats, extractor.Format{
			FormatID:     strconv.Itoa(f.ItagNo),
			URL:          streamURL,
			Ext:          mimeToExt(f.MimeType),
			VCodec:       vcodec,
			ACodec:       acodec,
			QualityLabel: f.QualityLabel,
			FormatNote:   note,
			Height:       f.Height,
			Filesize:     f.ContentLength,
		})
	}

	return info
}

// parseExpression 从格式表达式中取第一个 ext 和 height 限制
func parseExpression(expr string) (ext string, maxHeight int) {
	if m := extPattern.FindStringSubmatch(expr); len(m) == 2 {
		ext = m[1]
	}
	if m := heightPattern.FindStringSubmatch(expr); len(m) == 2 {
		maxHeight, _ = strconv.Atoi(m[1])
	}
	return ext, maxHeight
}

// selectProgressive 选择最优的音视频合一格式: 优先匹配 ext, 其次任意格式
func selectProgressive(formats youtube.FormatList, ext string, maxHeight int) *youtube.Format {
	var best, bestAnyExt *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 || !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		if better(f, bestAnyExt) {
			bestAnyExt = f
		}
		if ext != "" && mimeToExt(f.MimeType) == ext && better(f, best) {
			best = f
		}
	}
	if best != nil {
		return best
	}
	return bestAnyExt
}

func better(candidate, current *youtube.Format) bool {
	if current == nil {
		return true
	}
	if candidate.Height != current.Height {
		return candidate.Height > current.Height
	}
	return candidate.Bitrate > current.Bitrate
}

// mimeToExt 将 MIME 类型转换为扩展名, 与 yt-dlp 的命名一致
func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.TrimSpace(mime) {
	case "audio/mp4":
		return "m4a"
	case "video/3gpp":
		return "3gp"
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return "bin"
}

// splitCodecs 从 MIME 的 codecs 参数中拆分视频和音频编码
func splitCodecs(mime string, hasAudio bool) (vcodec, acodec string) {
	vcodec, acodec = "none", "none"

	var codecs []string
	if i := strings.Index(mime, "codecs="); i >= 0 {
		raw := strings.Trim(mime[i+len("codecs="):], `" `)
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codecs = append(codecs, c)
			}
		}
	}

	switch {
	case strings.HasPrefix(mime, "audio/"):
		if len(codecs) > 0 {
			acodec = codecs[0]
		}
	case strings.HasPrefix(mime, "video/"):
		if len(codecs) > 0 {
			vcodec = codecs[0]
		}
		if hasAudio && len(codecs) > 1 {
			acodec = codecs[1]
		}
	}
	return vcodec, acodec
}

// durationString 格式化时长, 例如 3:05 或 1:02:03
func durationString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// mapError 将客户端错误映射为提取错误
func mapError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength),
		strings.Contains(err.Error(), "cannot playback and download"):
		return fmt.Errorf("%w: %v", extractor.ErrExtraction, err)
	default:
		return err
	}
}

// Compile-time check
var _ extractor.Extractor = (*Backend)(nil)
