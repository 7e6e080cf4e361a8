package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *FileManager {
	t.Helper()
	return NewFileManager(filepath.Join(t.TempDir(), "root"), zap.NewNop())
}

func TestCreateWorkspace(t *testing.T) {
	m := newTestManager(t)

	a, err := m.CreateWorkspace()
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	b, err := m.CreateWorkspace()
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if a == b {
		t.Fatalf("workspaces must be unique, got %q twice", a)
	}
	if !strings.HasPrefix(filepath.Base(a), WorkspacePrefix) || filepath.Dir(a) != m.BasePath() {
		t.Fatalf("unexpected workspace path %q", a)
	}
	if fi, err := os.Stat(a); err != nil || !fi.IsDir() {
		t.Fatalf("workspace not created: %v", err)
	}
}

func TestFirstFile(t *testing.T) {
	m := newTestManager(t)
	dir, err := m.CreateWorkspace()
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}

	if _, err := m.FirstFile(dir); !errors.Is(err, ErrNoFile) {
		t.Fatalf("empty workspace: err = %v, want ErrNoFile", err)
	}

	os.WriteFile(filepath.Join(dir, "video.mp4.part"), []byte("x"), 0o600)
	os.Mkdir(filepath.Join(dir, "sub"), 0o700)
	if _, err := m.FirstFile(dir); !errors.Is(err, ErrNoFile) {
		t.Fatalf("partial file and dirs must be ignored, err = %v", err)
	}

	want := filepath.Join(dir, "video.webm")
	os.WriteFile(want, []byte("data"), 0o600)
	got, err := m.FirstFile(dir)
	if err != nil || got != want {
		t.Fatalf("FirstFile = %q, %v; want %q", got, err, want)
	}
}

func TestFileCloseRemovesWorkspace(t *testing.T) {
	m := newTestManager(t)
	dir, _ := m.CreateWorkspace()
	path := filepath.Join(dir, "My Video.webm")
	if err := os.WriteFile(path, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := m.Open(dir, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Size != 10 || f.Ext != "webm" || f.Name != "My Video.webm" {
		t.Fatalf("file = %+v", f)
	}

	// 只读一部分, 模拟客户端中途断开
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after close: %v", err)
	}
}

func TestOpenFailureRemovesWorkspace(t *testing.T) {
	m := newTestManager(t)
	dir, _ := m.CreateWorkspace()

	if _, err := m.Open(dir, filepath.Join(dir, "missing.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after failed open")
	}
}

func TestStaleWorkspaces(t *testing.T) {
	m := newTestManager(t)
	old, _ := m.CreateWorkspace()
	fresh, _ := m.CreateWorkspace()
	other := filepath.Join(m.BasePath(), "keep-me")
	os.Mkdir(other, 0o700)

	past := time.Now().Add(-3 * time.Hour)
	os.Chtimes(old, past, past)
	os.Chtimes(other, past, past)

	stale, err := m.StaleWorkspaces(time.Now(), 2*time.Hour)
	if err != nil {
		t.Fatalf("StaleWorkspaces: %v", err)
	}
	if len(stale) != 1 || stale[0] != old {
		t.Fatalf("stale = %v, want only %q (fresh %q)", stale, old, fresh)
	}
}

func TestStaleWorkspacesMissingRoot(t *testing.T) {
	m := newTestManager(t)
	stale, err := m.StaleWorkspaces(time.Now(), time.Hour)
	if err != nil || len(stale) != 0 {
		t.Fatalf("missing root: stale = %v, err = %v", stale, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Video - Part_1", "My Video - Part_1"},
		{"../../etc/passwd", "etcpasswd"},
		{`a:b*c?"d<e>f|g\h`, "abcdefgh"},
		{"trailing space   ", "trailing space"},
		{"Ünïcode 日本", "ncode"},
		{"???", "video"},
		{"", "video"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeUnicodeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"שלום עולם!", "שלום עולם"},
		{"Ünïcode 日本", "Ünïcode 日本"},
		{"東京/大阪: 2024", "東京大阪 2024"},
		{"../\\x", "x"},
		{"？！", "video"},
		{strings.Repeat("界", 250), strings.Repeat("界", 200)},
	}
	for _, tt := range tests {
		if got := SanitizeUnicodeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeUnicodeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		title, ext, want string
	}{
		{"Cool Clip", "webm", `attachment; filename="Cool Clip.webm"; filename*=UTF-8''Cool%20Clip.webm`},
		{"שלום", "mp4", `attachment; filename="video.mp4"; filename*=UTF-8''%D7%A9%D7%9C%D7%95%D7%9D.mp4`},
		{"Mix 日本", "m4a", `attachment; filename="Mix.m4a"; filename*=UTF-8''Mix%20%E6%97%A5%E6%9C%AC.m4a`},
	}
	for _, tt := range tests {
		got := ContentDisposition(AttachmentName(tt.title, tt.ext), AttachmentNameUTF8(tt.title, tt.ext))
		if got != tt.want {
			t.Errorf("ContentDisposition(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		title, ext, want string
	}{
		{"Hello/World", "webm", "HelloWorld.webm"},
		{"Clip", "", "Clip.mp4"},
		{"Clip", ".MKV", "Clip.mkv"},
	}
	for _, tt := range tests {
		got := AttachmentName(tt.title, tt.ext)
		if got != tt.want {
			t.Errorf("AttachmentName(%q, %q) = %q, want %q", tt.title, tt.ext, got, tt.want)
		}
		if strings.Count(got, ".") != 1 || strings.ContainsAny(got, `/\`) {
			t.Errorf("AttachmentName(%q, %q) = %q is not a safe single-extension name", tt.title, tt.ext, got)
		}
	}
}

func TestHeaderSafe(t *testing.T) {
	if got := HeaderSafe("plain title"); got != "plain title" {
		t.Fatalf("ascii title changed: %q", got)
	}
	if got := HeaderSafe("evil\r\nX-Injected: 1"); strings.ContainsAny(got, "\r\n") {
		t.Fatalf("control characters survived: %q", got)
	}
	if got := HeaderSafe("日本"); !strings.HasPrefix(got, "=?utf-8?q?") {
		t.Fatalf("non-ascii title not encoded: %q", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"mp4":     "video/mp4",
		"webm":    "video/webm",
		"m4a":     "audio/mp4",
		"unknown": "video/mp4",
		"":        "video/mp4",
	}
	for ext, want := range tests {
		if got := ContentType(ext); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", ext, got, want)
		}
	}
}
