package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"avidlp/youtube-server/internal/config"
	"avidlp/youtube-server/internal/extractor"
)

// rawFormat yt-dlp --dump-json 中的格式信息
type rawFormat struct {
	FormatID       string `json:"format_id"`
	URL            string `json:"url"`
	Ext            string `json:"ext"`
	VCodec         string `json:"vcodec"`
	ACodec         string `json:"acodec"`
	QualityLabel   string `json:"quality_label"`
	FormatNote     string `json:"format_note"`
	Height         int    `json:"height"`
	Filesize       int64  `json:"filesize"`
	FilesizeApprox int64  `json:"filesize_approx"`
}

// rawInfo yt-dlp --dump-json 输出
type rawInfo struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Duration       float64     `json:"duration"`
	DurationString string      `json:"duration_string"`
	Uploader       string      `json:"uploader"`
	UploaderID     string      `json:"uploader_id"`
	UploadDate     string      `json:"upload_date"`
	ViewCount      int64       `json:"view_count"`
	LikeCount      int64       `json:"like_count"`
	Thumbnail      string      `json:"thumbnail"`
	WebpageURL     string      `json:"webpage_url"`
	Categories     []string    `json:"categories"`
	Tags           []string    `json:"tags"`
	Formats        []rawFormat `json:"formats"`
}

func (r *rawInfo) toVideoInfo() *extractor.VideoInfo {
	info := &extractor.VideoInfo{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Duration:       r.Duration,
		DurationString: r.DurationString,
		Uploader:       r.Uploader,
		UploaderID:     r.UploaderID,
		UploadDate:     r.UploadDate,
		ViewCount:      r.ViewCount,
		LikeCount:      r.LikeCount,
		Thumbnail:      r.Thumbnail,
		WebpageURL:     r.WebpageURL,
		Categories:     r.Categories,
		Tags:           r.Tags,
		Formats:        make([]extractor.Format, 0, len(r.Formats)),
	}
	for _, f := range r.Formats {
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		info.Formats = append(info.Formats, extractor.Format{
			FormatID:     f.FormatID,
			URL:          f.URL,
			Ext:          f.Ext,
			VCodec:       f.VCodec,
			ACodec:       f.ACodec,
			QualityLabel: f.QualityLabel,
			FormatNote:   f.FormatNote,
			Height:       f.Height,
			Filesize:     size,
		})
	}
	return info
}

// Executor yt-dlp 执行器
type Executor struct {
	binaryPath  string
	timeout     time.Duration
	proxy       string
	cookiesFile string
	defaultArgs []string
	logger      *zap.Logger
}

// NewExecutor 创建 yt-dlp 执行器
// cookies 文件只在启动时检查一次: 配置了且存在才会传给每次调用
func NewExecutor(cfg *config.YTDLPConfig, logger *zap.Logger) *Executor {
	e := &Executor{
		binaryPath:  cfg.BinaryPath,
		timeout:     cfg.GetTimeout(),
		proxy:       cfg.Proxy,
		defaultArgs: append([]string(nil), cfg.DefaultArgs...),
		logger:      logger,
	}

	if cfg.CookiesFile != "" {
		if _, err := os.Stat(cfg.CookiesFile); err == nil {
			e.cookiesFile = cfg.CookiesFile
			logger.Info("using cookies file", zap.String("path", cfg.CookiesFile))
		} else {
			logger.Warn("cookies file not found, continuing without it",
				zap.String("path", cfg.CookiesFile), zap.Error(err))
		}
	}

	return e
}

// CookiesFile 实际使用的 cookies 文件, 未启用时为空
func (e *Executor) CookiesFile() string {
	return e.cookiesFile
}

// commonArgs 所有调用共享的参数
func (e *Executor) commonArgs() []string {
	args := append([]string(nil), e.defaultArgs...)

	// 添加代理 (如果配置了)
	if e.proxy != "" {
		args = append(args, "--proxy", e.proxy)
	}

	// 添加 cookie 文件 (如果存在)
	if e.cookiesFile != "" {
		args = append(args, "--cookies", e.cookiesFile)
	}

	return args
}

// buildInfoArgs 构建仅提取元数据的参数
func (e *Executor) buildInfoArgs(url string) []string {
	args := []string{
		"--dump-json",
		"--skip-download",
		"--no-playlist",
	}
	args = append(args, e.commonArgs()...)

	// "--" 之后的参数不会被解析为选项
	return append(args, "--", url)
}

// buildDownloadArgs 构建下载参数, 同一次调用同时输出元数据和文件
func (e *Executor) buildDownloadArgs(url string, opts extractor.DownloadOptions) []string {
	tmpl := opts.OutputTemplate
	if tmpl == "" {
		tmpl = "%(title)s.%(ext)s"
	}

	args := []string{
		"--dump-json",
		"--no-simulate",
		"--no-playlist",
		"--output", filepath.Join(opts.Dir, tmpl),
	}
	if opts.Format != "" {
		args = append(args, "--format", opts.Format)
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	args = append(args, e.commonArgs()...)

	return append(args, "--", url)
}

// ExtractInfo 提取视频信息 (仅元数据, 不下载)
func (e *Executor) ExtractInfo(ctx context.Context, url string) (*extractor.VideoInfo, error) {
	output, err := e.run(ctx, e.buildInfoArgs(url))
	if err != nil {
		return nil, err
	}
	return decodeInfo(output)
}

// Download 执行下载
func (e *Executor) Download(ctx context.Context, url string, opts extractor.DownloadOptions) (*extractor.VideoInfo, error) {
	e.logger.Info("starting yt-dlp download",
		zap.String("url", url),
		zap.String("format", opts.Format),
		zap.String("dir", opts.Dir))

	output, err := e.run(ctx, e.buildDownloadArgs(url, opts))
	if err != nil {
		return nil, err
	}
	return decodeInfo(output)
}

// run 执行 yt-dlp 并返回标准输出
func (e *Executor) run(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			e.logger.Error("yt-dlp timed out", zap.Duration("timeout", e.timeout))
			return nil, fmt.Errorf("%w after %v", ErrTimeout, e.timeout)
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, ctx.Err()
		case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrBinaryNotFound, e.binaryPath)
		}

		errOut := stderr.String()
		e.logger.Warn("yt-dlp failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", errOut))

		mapped := MapError(errOut)
		if line := errorLine(errOut); line != "" {
			return nil, fmt.Errorf("%w: %s", mapped, line)
		}
		return nil, fmt.Errorf("%w: %v", mapped, err)
	}

	e.logger.Debug("yt-dlp finished", zap.Duration("elapsed", elapsed))
	return stdout.Bytes(), nil
}

// decodeInfo 解析 --dump-json 输出, 取第一行 JSON
func decodeInfo(output []byte) (*extractor.VideoInfo, error) {
	line := bytes.TrimSpace(output)
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}

	var raw rawInfo
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return raw.toVideoInfo(), nil
}

// Compile-time check
var _ extractor.Extractor = (*Executor)(nil)

// Version 返回 yt-dlp 版本, 用于启动时检查
func (e *Executor) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, e.binaryPath)
		}
		return "", fmt.Errorf("%w: %v", ErrYTDLPFailed, err)
	}
	return strings.TrimSpace(string(out)), nil
}
