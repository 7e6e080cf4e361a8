package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkspacePrefix 下载临时目录的名称前缀
const WorkspacePrefix = "dl-"

// ErrNoFile 工作目录中没有下载得到的文件
var ErrNoFile = errors.New("no file in workspace")

// FileManager 文件管理器, 负责每次下载的临时工作目录
type FileManager struct {
	basePath string
	logger   *zap.Logger
}

// NewFileManager 创建文件管理器
func NewFileManager(basePath string, logger *zap.Logger) *FileManager {
	return &FileManager{basePath: basePath, logger: logger}
}

// BasePath 临时根目录
func (m *FileManager) BasePath() string {
	return m.basePath
}

// EnsureDir 确保临时根目录存在
func (m *FileManager) EnsureDir() error {
	if err := os.MkdirAll(m.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create temp root: %w", err)
	}
	return nil
}

// CreateWorkspace 创建新的工作目录: <base>/dl-<uuid>
func (m *FileManager) CreateWorkspace() (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}
	dir := filepath.Join(m.basePath, WorkspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	return dir, nil
}

// FirstFile 返回工作目录中的第一个普通文件 (忽略 yt-dlp 的 .part 残留)
func (m *FileManager) FirstFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	return "", ErrNoFile
}

// DeleteDir 删除目录及其内容, 失败只记录日志
func (m *FileManager) DeleteDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to delete workspace", zap.String("dir", dir), zap.Error(err))
		return
	}
	m.logger.Debug("deleted workspace", zap.String("dir", dir))
}

// StaleWorkspaces 列出修改时间早于 now-maxAge 的工作目录
func (m *FileManager) StaleWorkspaces(now time.Time, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read temp root: %w", err)
	}

	var stale []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), WorkspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			stale = append(stale, filepath.Join(m.basePath, e.Name()))
		}
	}
	return stale, nil
}
