package models

import "avidlp/youtube-server/internal/extractor"

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// InfoQuery 视频信息查询参数
type InfoQuery struct {
	URL     string `form:"url"`
	VideoID string `form:"video_id"`
}

// DownloadRequest 下载请求, 也用于直链解析
type DownloadRequest struct {
	URL     string `json:"url"`
	VideoID string `json:"video_id"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

// InfoResponse 视频信息响应
type InfoResponse struct {
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
	FormatsCount   int      `json:"formats_count"`
	Categories     []string `json:"categories"`
	Tags           []string `json:"tags"`
}

// NewInfoResponse 由提取结果构造响应, 切片字段不会为 null
func NewInfoResponse(info *extractor.VideoInfo) *InfoResponse {
	resp := &InfoResponse{
		ID:             info.ID,
		Title:          info.Title,
		Description:    info.Description,
		Duration:       info.Duration,
		DurationString: info.DurationString,
		Uploader:       info.Uploader,
		UploaderID:     info.UploaderID,
		UploadDate:     info.UploadDate,
		ViewCount:      info.ViewCount,
		LikeCount:      info.LikeCount,
		Thumbnail:      info.Thumbnail,
		WebpageURL:     info.WebpageURL,
		FormatsCount:   len(info.Formats),
		Categories:     info.Categories,
		Tags:           info.Tags,
	}
	if resp.Categories == nil {
		resp.Categories = []string{}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	return resp
}

// StreamResponse 直链解析响应
type StreamResponse struct {
	StreamURL string  `json:"stream_url"`
	Title     string  `json:"title"`
	Format    string  `json:"format"`
	Filesize  int64   `json:"filesize"`
	Duration  float64 `json:"duration"`
}
