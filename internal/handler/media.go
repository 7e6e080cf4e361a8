package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"avidlp/youtube-server/internal/extractor"
	"avidlp/youtube-server/internal/middleware"
	"avidlp/youtube-server/internal/models"
	"avidlp/youtube-server/internal/service"
	"avidlp/youtube-server/internal/storage"
)

// MediaService 处理器依赖的媒体服务
type MediaService interface {
	Info(ctx context.Context, url, videoID string) (*extractor.VideoInfo, error)
	Download(ctx context.Context, params service.DownloadParams) (*service.Download, error)
	ResolveStream(ctx context.Context, url, videoID, quality string) (*service.StreamLink, error)
}

// MediaHandler 媒体处理器
type MediaHandler struct {
	media     MediaService
	chunkSize int
	logger    *zap.Logger
}

// NewMediaHandler 创建媒体处理器
func NewMediaHandler(media MediaService, chunkSize int, logger *zap.Logger) *MediaHandler {
	if chunkSize <= 0 {
		chunkSize = 8192
	}
	return &MediaHandler{
		media:     media,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Info 获取视频信息
func (h *MediaHandler) Info(c *gin.Context) {
	var query models.InfoQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		models.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	info, err := h.media.Info(c.Request.Context(), query.URL, query.VideoID)
	if err != nil {
		h.writeError(c, err, "Error extracting video info: ")
		return
	}

	c.JSON(http.StatusOK, models.NewInfoResponse(info))
}

// Download 下载视频并以流的形式返回文件
func (h *MediaHandler) Download(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	// 1. 下载到临时工作目录
	dl, err := h.media.Download(c.Request.Context(), service.DownloadParams{
		URL:     req.URL,
		VideoID: req.VideoID,
		Quality: req.Quality,
		Format:  req.Format,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNoFile) {
			models.InternalError(c, "Failed to download video")
			return
		}
		h.writeError(c, err, "Error downloading video: ")
		return
	}
	// 传输结束或客户端断开时删除工作目录
	defer dl.File.Close()

	// 2. 设置响应头
	c.Header("Content-Disposition", storage.ContentDisposition(dl.Filename, dl.UTF8Filename))
	c.Header("X-Video-Title", storage.HeaderSafe(dl.Title))
	c.Header("Content-Type", dl.ContentType)
	c.Header("Content-Length", strconv.FormatInt(dl.File.Size, 10))
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Status(http.StatusOK)

	// 3. 分块流式传输
	written, err := h.copyChunks(c, dl.File)
	if err != nil {
		h.logger.Warn("download stream interrupted",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("file", dl.File.Name),
			zap.Int64("written", written),
			zap.Error(err))
	}
}

// copyChunks 按 chunkSize 读取并写出, 每块之后 Flush
func (h *MediaHandler) copyChunks(c *gin.Context, r io.Reader) (int64, error) {
	buffer := make([]byte, h.chunkSize)
	var written int64
	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, werr := c.Writer.Write(buffer[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			c.Writer.Flush()
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
		if cerr := c.Request.Context().Err(); cerr != nil {
			return written, cerr
		}
	}
}

// DownloadStream 返回可直接播放的媒体地址
func (h *MediaHandler) DownloadStream(c *gin.Context) {
	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	link, err := h.media.ResolveStream(c.Request.Context(), req.URL, req.VideoID, req.Quality)
	if err != nil {
		if errors.Is(err, service.ErrNoSuitableFormat) {
			models.BadRequest(c, "Could not find suitable format")
			return
		}
		h.writeError(c, err, "Error extracting video info: ")
		return
	}

	c.JSON(http.StatusOK, models.StreamResponse{
		StreamURL: link.URL,
		Title:     link.Title,
		Format:    link.FormatID,
		Filesize:  link.Filesize,
		Duration:  link.Duration,
	})
}

// writeError 缺少引用和提取失败返回 400, 其余返回 500
func (h *MediaHandler) writeError(c *gin.Context, err error, extractionPrefix string) {
	switch {
	case errors.Is(err, service.ErrMissingReference):
		models.BadRequest(c, "URL or video_id is required")
	case errors.Is(err, extractor.ErrExtraction):
		models.BadRequest(c, extractionPrefix+err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		models.InternalError(c, "Internal error: "+err.Error())
	}
}
