package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// MaxImageSize 单张图片下载上限
const MaxImageSize = 10 << 20

// ErrBlockedHost 目标地址属于内网、回环或链路本地
var ErrBlockedHost = errors.New("image host is not allowed")

// ImageFetcher 图片下载器；默认只允许公网地址
type ImageFetcher struct {
	client *http.Client
}

// NewImageFetcher allowPrivate 为 false 时在建立连接前校验实际 IP，重定向同样生效
func NewImageFetcher(allowPrivate bool) *ImageFetcher {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !allowPrivate {
		dialer.Control = func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if !IsPublicIP(net.ParseIP(host)) {
				return ErrBlockedHost
			}
			return nil
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &ImageFetcher{client: &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}}
}

// IsPublicIP 排除回环、私有、链路本地、组播与未指定地址
func IsPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified())
}

var defaultFetcher = NewImageFetcher(false)

// DownloadImage 使用默认下载器（仅公网地址）
func DownloadImage(ctx context.Context, url string) ([]byte, string, error) {
	return defaultFetcher.Download(ctx, url)
}

// Download 下载网络图片，返回数据和 Content-Type
func (f *ImageFetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > MaxImageSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
