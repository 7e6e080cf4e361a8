package storage

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// File 工作目录中的已下载文件, Close 时删除整个工作目录
type File struct {
	*os.File
	Name string // 磁盘上的文件名
	Ext  string // 不含点的扩展名
	Size int64

	dir       string
	manager   *FileManager
	closeOnce sync.Once
	closeErr  error
}

// Open 打开工作目录中的文件; 打开失败时立即删除工作目录
func (m *FileManager) Open(dir, path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		m.DeleteDir(dir)
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		m.DeleteDir(dir)
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	name := filepath.Base(path)
	return &File{
		File:    f,
		Name:    name,
		Ext:     strings.TrimPrefix(filepath.Ext(name), "."),
		Size:    stat.Size(),
		dir:     dir,
		manager: m,
	}, nil
}

// Close 关闭文件并删除工作目录, 可重复调用
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.File.Close()
		f.manager.DeleteDir(f.dir)
	})
	return f.closeErr
}

// Dir 文件所在的工作目录
func (f *File) Dir() string {
	return f.dir
}

// SanitizeFilename 只保留 ASCII 字母数字、空格、连字符和下划线, 并去掉末尾空白
func SanitizeFilename(name string) string {
	return sanitize(name, false)
}

// SanitizeUnicodeFilename 同 SanitizeFilename, 但保留任意语言的字母和数字
func SanitizeUnicodeFilename(name string) string {
	return sanitize(name, true)
}

func sanitize(name string, allowUnicode bool) string {
	var b strings.Builder
	for _, r := range name {
		if !allowUnicode && r >= unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	clean := strings.TrimRightFunc(b.String(), unicode.IsSpace)

	// 按字符限制长度
	const maxLen = 200
	if runes := []rune(clean); len(runes) > maxLen {
		clean = strings.TrimRightFunc(string(runes[:maxLen]), unicode.IsSpace)
	}
	if clean == "" {
		return "video"
	}
	return clean
}

// AttachmentName 生成 Content-Disposition 使用的 ASCII 文件名
func AttachmentName(title, ext string) string {
	return SanitizeFilename(title) + "." + attachmentExt(ext)
}

// AttachmentNameUTF8 生成保留非 ASCII 字母的文件名, 用于 filename*
func AttachmentNameUTF8(title, ext string) string {
	return SanitizeUnicodeFilename(title) + "." + attachmentExt(ext)
}

func attachmentExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "mp4"
	}
	return SanitizeFilename(ext)
}

// ContentDisposition 生成 attachment 头, 同时带 ASCII filename 和 RFC 5987 filename*
func ContentDisposition(asciiName, utf8Name string) string {
	if utf8Name == "" {
		utf8Name = asciiName
	}
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", asciiName, encodeExtValue(utf8Name))
}

// encodeExtValue 按 RFC 5987 attr-char 规则百分号编码 UTF-8 字节
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

// HeaderSafe 去掉控制字符, 非 ASCII 标题用 RFC 2047 编码
func HeaderSafe(value string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	return mime.QEncoding.Encode("utf-8", clean)
}

// ContentType 根据扩展名推断 MIME 类型, 未知时返回 video/mp4
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "opus", "ogg":
		return "audio/ogg"
	case "3gp":
		return "video/3gpp"
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "video/mp4"
}
