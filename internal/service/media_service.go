package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"avidlp/youtube-server/internal/extractor"
	"avidlp/youtube-server/internal/storage"
	"avidlp/youtube-server/internal/ytdlp"
)

const (
	// WatchURLPrefix 仅提供 video_id 时拼接的规范地址
	WatchURLPrefix = "https://www.youtube.com/watch?v="
	// DefaultQuality 默认质量
	DefaultQuality = "best"
	// OutputTemplate yt-dlp 输出文件名模板
	OutputTemplate = "%(title)s.%(ext)s"
)

var (
	// ErrMissingReference 既没有 url 也没有 video_id
	ErrMissingReference = errors.New("url or video_id is required")
	// ErrNoSuitableFormat 没有可用的直链格式
	ErrNoSuitableFormat = errors.New("no suitable format")
)

// DownloadParams 下载参数
type DownloadParams struct {
	URL     string
	VideoID string
	Quality string
	Format  string
}

// Download 下载结果, 调用方必须 Close File
type Download struct {
	File         *storage.File
	Title        string
	Filename     string // ASCII 文件名
	UTF8Filename string // 保留非 ASCII 字母的文件名
	ContentType  string
}

// StreamLink 直链解析结果
type StreamLink struct {
	URL      string
	Title    string
	FormatID string
	Filesize int64
	Duration float64
}

// MediaService 媒体服务
type MediaService struct {
	extractor extractor.Extractor
	files     *storage.FileManager
	limiter   *Limiter
	logger    *zap.Logger
}

// NewMediaService 创建媒体服务
func NewMediaService(ext extractor.Extractor, files *storage.FileManager, limiter *Limiter, logger *zap.Logger) *MediaService {
	return &MediaService{
		extractor: ext,
		files:     files,
		limiter:   limiter,
		logger:    logger,
	}
}

// ResolveURL 规范化视频引用: 优先 url, 否则由 video_id 拼接
func ResolveURL(url, videoID string) (string, error) {
	url = strings.TrimSpace(url)
	if url != "" {
		return url, nil
	}
	videoID = strings.TrimSpace(videoID)
	if videoID != "" {
		return WatchURLPrefix + videoID, nil
	}
	return "", ErrMissingReference
}

// Info 获取视频元数据
func (s *MediaService) Info(ctx context.Context, url, videoID string) (*extractor.VideoInfo, error) {
	target, err := ResolveURL(url, videoID)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for extraction slot: %w", err)
	}
	defer s.limiter.Release()

	s.logger.Info("extracting video info", zap.String("url", target))

	info, err := s.extractor.ExtractInfo(ctx, target)
	if err != nil {
		s.logger.Error("extract info failed", zap.String("url", target), zap.Error(err))
		return nil, err
	}
	return info, nil
}

// Download 下载视频到新的工作目录并打开得到的文件
func (s *MediaService) Download(ctx context.Context, params DownloadParams) (*Download, error) {
	// 1. 规范化引用
	target, err := ResolveURL(params.URL, params.VideoID)
	if err != nil {
		return nil, err
	}

	format := ytdlp.NormalizeFormat(params.Format)
	quality := strings.TrimSpace(params.Quality)
	if quality == "" {
		quality = DefaultQuality
	}

	// 2. 创建工作目录
	dir, err := s.files.CreateWorkspace()
	if err != nil {
		return nil, err
	}

	// 3. 调用提取库下载
	info, err := s.download(ctx, target, extractor.DownloadOptions{
		Dir:            dir,
		OutputTemplate: OutputTemplate,
		Format:         ytdlp.BuildFormatExpression(format, quality),
		MergeFormat:    ytdlp.MergeFormat(format),
	})
	if err != nil {
		s.files.DeleteDir(dir)
		return nil, err
	}

	// 4. 查找下载得到的文件
	path, err := s.files.FirstFile(dir)
	if err != nil {
		s.files.DeleteDir(dir)
		return nil, err
	}

	// 5. 打开文件, 关闭时删除工作目录
	file, err := s.files.Open(dir, path)
	if err != nil {
		return nil, err
	}

	title := "video"
	if info != nil && info.Title != "" {
		title = info.Title
	}

	s.logger.Info("download ready",
		zap.String("url", target),
		zap.String("file", file.Name),
		zap.Int64("size", file.Size))

	return &Download{
		File:         file,
		Title:        title,
		Filename:     storage.AttachmentName(title, file.Ext),
		UTF8Filename: storage.AttachmentNameUTF8(title, file.Ext),
		ContentType:  storage.ContentType(file.Ext),
	}, nil
}

func (s *MediaService) download(ctx context.Context, target string, opts extractor.DownloadOptions) (*extractor.VideoInfo, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for extraction slot: %w", err)
	}
	defer s.limiter.Release()

	s.logger.Info("starting download",
		zap.String("url", target),
		zap.String("format", opts.Format),
		zap.String("dir", opts.Dir))

	start := time.Now()
	info, err := s.extractor.Download(ctx, target, opts)
	if err != nil {
		s.logger.Error("download failed", zap.String("url", target), zap.Error(err))
		return nil, err
	}
	s.logger.Info("download completed", zap.String("url", target), zap.Duration("elapsed", time.Since(start)))
	return info, nil
}

// ResolveStream 解析可直接播放的媒体地址
func (s *MediaService) ResolveStream(ctx context.Context, url, videoID, quality string) (*StreamLink, error) {
	info, err := s.Info(ctx, url, videoID)
	if err != nil {
		return nil, err
	}

	f := SelectFormat(info.Formats, quality)
	if f == nil || f.URL == "" {
		return nil, ErrNoSuitableFormat
	}

	return &StreamLink{
		URL:      f.URL,
		Title:    info.Title,
		FormatID: f.FormatID,
		Filesize: f.Filesize,
		Duration: info.Duration,
	}, nil
}

// SelectFormat 选择格式: best 取第一个音视频合一的格式, 否则按质量标签匹配; 都没有时取最后一个
func SelectFormat(formats []extractor.Format, quality string) *extractor.Format {
	if len(formats) == 0 {
		return nil
	}
	quality = strings.TrimSpace(quality)
	if quality == "" {
		quality = DefaultQuality
	}

	for i := range formats {
		f := &formats[i]
		if quality == DefaultQuality {
			if f.HasVideo() && f.HasAudio() {
				return f
			}
			continue
		}
		if f.Label() == quality {
			return f
		}
	}
	return &formats[len(formats)-1]
}
