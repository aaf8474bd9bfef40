package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

const maxPostcardImageBytes = 20 << 20

var imageExtensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
}

// ImageStore 把 AI 返回的临时图片地址下载到本地目录，返回可长期访问的路径。
type ImageStore struct {
	dir     string
	urlPath string
	http    httpDoer
}

// NewImageStore 构造 ImageStore，dir 为本地目录，urlPath 为对外访问前缀。
func NewImageStore(dir, urlPath string) *ImageStore {
	return &ImageStore{
		dir:     dir,
		urlPath: "/" + strings.Trim(urlPath, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// SetHTTPClient 替换下载使用的 HTTP 客户端。
func (s *ImageStore) SetHTTPClient(client httpDoer) {
	if client != nil {
		s.http = client
	}
}

// Save 下载图片并保存为 <dir>/<userID>/diary_<diaryID>_<随机串><ext>。
// 内容必须能被解码为图片，否则拒绝保存。
func (s *ImageStore) Save(ctx context.Context, remoteURL string, userID, diaryID uint) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPostcardImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxPostcardImageBytes {
		return "", errors.New("image too large")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	ext, ok := imageExtensions[format]
	if !ok {
		return "", fmt.Errorf("unsupported image format %s", format)
	}

	userDir := filepath.Join(s.dir, fmt.Sprint(userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}

	filename := fmt.Sprintf("diary_%d_%s%s", diaryID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8], ext)
	if err := os.WriteFile(filepath.Join(userDir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return path.Join(s.urlPath, fmt.Sprint(userID), filename), nil
}

// Remove 删除本地图片，非本目录下的地址直接忽略。
func (s *ImageStore) Remove(localURL string) {
	prefix := s.urlPath + "/"
	if !strings.HasPrefix(localURL, prefix) {
		return
	}
	rel := filepath.FromSlash(strings.TrimPrefix(localURL, prefix))
	if strings.Contains(rel, "..") {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, rel)); err != nil && !os.IsNotExist(err) {
		log.Printf("[明信片] 删除本地图片失败 %s: %v", localURL, err)
	}
}
