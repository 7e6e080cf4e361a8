package extractor

import (
	"context"
	"errors"
)

// ErrExtraction 提取库拒绝了该视频 (不可用/私有/已删除等), 对调用方属于客户端错误
var ErrExtraction = errors.New("extraction failed")

// Format 单个可用的媒体格式
type Format struct {
	FormatID     string `json:"format_id"`
	URL          string `json:"url"`
	Ext          string `json:"ext"`
	VCodec       string `json:"vcodec"`
	ACodec       string `json:"acodec"`
	QualityLabel string `json:"quality_label"`
	FormatNote   string `json:"format_note"`
	Height       int    `json:"height"`
	Filesize     int64  `json:"filesize"`
}

// HasVideo 是否包含视频流
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// HasAudio 是否包含音频流
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// Label 质量标签, 优先 quality_label, 其次 format_note
func (f Format) Label() string {
	if f.QualityLabel != "" {
		return f.QualityLabel
	}
	return f.FormatNote
}

// VideoInfo 提取库返回的视频元数据
type VideoInfo struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Duration       float64  `json:"duration"`
	DurationString string   `json:"duration_string"`
	Uploader       string   `json:"uploader"`
	UploaderID     string   `json:"uploader_id"`
	UploadDate     string   `json:"upload_date"`
	ViewCount      int64    `json:"view_count"`
	LikeCount      int64    `json:"like_count"`
	Thumbnail      string   `json:"thumbnail"`
	WebpageURL     string   `json:"webpage_url"`
	Categories     []string `json:"categories"`
	Tags           []string `json:"tags"`
	Formats        []Format `json:"formats"`
}

// DownloadOptions 下载参数
type DownloadOptions struct {
	Dir            string // 输出目录
	OutputTemplate string // 文件名模板, 例如 %(title)s.%(ext)s
	Format         string // 格式选择表达式
	MergeFormat    string // 合并后的容器格式, 可为空
}

// Extractor 媒体提取库的抽象
type Extractor interface {
	// ExtractInfo 仅提取元数据, 不下载
	ExtractInfo(ctx context.Context, url string) (*VideoInfo, error)
	// Download 按格式表达式下载到 opts.Dir, 返回对应的元数据
	Download(ctx context.Context, url string, opts DownloadOptions) (*VideoInfo, error)
}
