package ytdlp

import (
	"errors"
	"strings"

	"avidlp/youtube-server/internal/extractor"
)

// extractionError 提取库拒绝视频时的错误, 均可通过 errors.Is 匹配 extractor.ErrExtraction
type extractionError struct {
	msg string
}

func (e *extractionError) Error() string { return e.msg }

func (e *extractionError) Unwrap() error { return extractor.ErrExtraction }

var (
	// 视频相关错误 (客户端错误)
	ErrVideoNotFound  error = &extractionError{"video unavailable"}
	ErrVideoPrivate   error = &extractionError{"video is private"}
	ErrVideoDeleted   error = &extractionError{"video has been deleted"}
	ErrGeoRestricted  error = &extractionError{"video is geo-restricted"}
	ErrAgeRestricted  error = &extractionError{"video is age-restricted"}
	ErrCopyrightClaim error = &extractionError{"video removed due to copyright claim"}
	ErrLoginRequired  error = &extractionError{"sign-in required"}
	ErrUnsupportedURL error = &extractionError{"unsupported URL"}
	ErrFormatNotFound error = &extractionError{"requested format is not available"}
	ErrDownloadFailed error = &extractionError{"yt-dlp reported an error"}

	// 系统相关错误 (服务端错误)
	ErrTimeout        = errors.New("yt-dlp timeout")
	ErrBinaryNotFound = errors.New("yt-dlp binary not found")
	ErrYTDLPFailed    = errors.New("yt-dlp execution failed")
	ErrInvalidOutput  = errors.New("failed to parse yt-dlp output")
)

// MapError 将 yt-dlp 的错误输出映射到具体错误
func MapError(stderr string) error {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "requested format is not available"):
		return ErrFormatNotFound
	case strings.Contains(lower, "private video"):
		return ErrVideoPrivate
	case strings.Contains(lower, "has been removed") || strings.Contains(lower, "has been deleted"):
		return ErrVideoDeleted
	case strings.Contains(lower, "copyright"):
		return ErrCopyrightClaim
	case strings.Contains(lower, "available in your country") || strings.Contains(lower, "geo restrict"):
		return ErrGeoRestricted
	case strings.Contains(lower, "age-restricted") || strings.Contains(lower, "confirm your age"):
		return ErrAgeRestricted
	case strings.Contains(lower, "sign in to confirm") || strings.Contains(lower, "login required"):
		return ErrLoginRequired
	case strings.Contains(lower, "video unavailable") || strings.Contains(lower, "not available"):
		return ErrVideoNotFound
	case strings.Contains(lower, "unsupported url") || strings.Contains(lower, "is not a valid url"):
		return ErrUnsupportedURL
	case strings.Contains(lower, "error:"):
		return ErrDownloadFailed
	default:
		return ErrYTDLPFailed
	}
}

// errorLine 提取 stderr 中第一条 ERROR 行, 没有则返回最后一个非空行
func errorLine(stderr string) string {
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		last = line
	}
	return last
}
