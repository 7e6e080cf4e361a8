package ytdlp

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultFormat 默认容器格式
const DefaultFormat = "mp4"

// NormalizeFormat 规范化容器格式, 只保留小写字母和数字
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	var b strings.Builder
	for _, r := range format {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultFormat
	}
	return b.String()
}

// BuildFormatExpression 构建格式选择表达式
// mp4:  bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best
// webm: bestvideo[ext=webm]+bestaudio[ext=webm]/best[ext=webm]/best
// 其他: best[ext=X]/best
// quality 为高度标签(例如 720p)时, 除最后的 best 外每一项都加上 [height<=N]
func BuildFormatExpression(format, quality string) string {
	format = NormalizeFormat(format)

	limit := ""
	if height, ok := qualityHeight(quality); ok {
		limit = fmt.Sprintf("[height<=%d]", height)
	}

	switch format {
	case "mp4":
		return fmt.Sprintf("bestvideo[ext=mp4]%s+bestaudio[ext=m4a]/best[ext=mp4]%s/best", limit, limit)
	case "webm":
		return fmt.Sprintf("bestvideo[ext=webm]%s+bestaudio[ext=webm]/best[ext=webm]%s/best", limit, limit)
	default:
		return fmt.Sprintf("best[ext=%s]%s/best", format, limit)
	}
}

// MergeFormat 需要合并音视频时的输出容器, 只对 mp4/webm 生效
func MergeFormat(format string) string {
	switch NormalizeFormat(format) {
	case "mp4":
		return "mp4"
	case "webm":
		return "webm"
	default:
		return ""
	}
}

// qualityHeight 将质量标签转换为高度, best/worst/未知标签返回 false
func qualityHeight(quality string) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(quality))
	switch q {
	case "", "best", "worst":
		return 0, false
	case "4k", "2160p":
		return 2160, true
	case "2k", "1440p":
		return 1440, true
	}

	q = strings.TrimSuffix(q, "p")
	height, err := strconv.Atoi(q)
	if err != nil || height < 100 || height > 4320 {
		return 0, false
	}
	return height, true
}
