package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
	"purin_order/pkg/utils"
)

// ImageMigrator 图片迁移接口（表格导入使用）
type ImageMigrator interface {
	MigrateImages(ctx context.Context, urls []string) (out []string, migrated int, errs []string)
}

// ImageSyncService 把外部图片迁移到自有存储
type ImageSyncService struct {
	storage     StorageProvider
	productRepo repository.ProductRepository
	hostMarker  string
	download    func(ctx context.Context, url string) ([]byte, string, error)
	log         *zap.Logger
}

// NewImageSyncService 创建图片同步服务；hostMarker 为已迁移 URL 中必含的子串
func NewImageSyncService(storage StorageProvider, productRepo repository.ProductRepository, hostMarker string, log *zap.Logger) *ImageSyncService {
	return &ImageSyncService{
		storage:     storage,
		productRepo: productRepo,
		hostMarker:  hostMarker,
		download:    utils.DownloadImage,
		log:         logger.OrNop(log).Named("image_sync"),
	}
}

// IsMigrated URL 包含存储域名子串即视为已迁移
func (s *ImageSyncService) IsMigrated(url string) bool {
	return s.hostMarker != "" && strings.Contains(url, s.hostMarker)
}

// MigrateImage 下载并上传到存储；失败时返回原 URL 和错误
func (s *ImageSyncService) MigrateImage(ctx context.Context, url string) (string, error) {
	if s.IsMigrated(url) {
		return url, nil
	}
	if !isHTTPURL(url) {
		return url, fmt.Errorf("url không hợp lệ: %q", url)
	}
	if s.storage == nil {
		return url, fmt.Errorf("storage chưa được cấu hình")
	}

	data, contentType, err := s.download(ctx, url)
	if err != nil {
		return url, err
	}

	newURL, err := s.storage.Upload(ctx, data, fileNameFromURL(url), contentType)
	if err != nil {
		return url, err
	}
	return newURL, nil
}

// MigrateImages 顺序迁移一组图片，失败项保留原 URL
func (s *ImageSyncService) MigrateImages(ctx context.Context, urls []string) ([]string, int, []string) {
	out := make([]string, len(urls))
	migrated := 0
	var errs []string

	for i, u := range urls {
		u = strings.TrimSpace(u)
		out[i] = u
		if u == "" || s.IsMigrated(u) {
			continue
		}
		newURL, err := s.MigrateImage(ctx, u)
		out[i] = newURL
		if err != nil {
			errs = appendErr(errs, u, err)
			continue
		}
		migrated++
	}
	return out, migrated, errs
}

// SyncProductImages 迁移指定商品（为空则全部）的图片
func (s *ImageSyncService) SyncProductImages(ctx context.Context, productIDs []int64) (*dto.ImageSyncResult, error) {
	var (
		products []model.Product
		err      error
	)
	if len(productIDs) > 0 {
		products, err = s.productRepo.GetByIDs(ctx, productIDs)
	} else {
		products, err = s.productRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	result := &dto.ImageSyncResult{Errors: []string{}}
	for _, p := range products {
		if ctx.Err() != nil {
			result.Errors = appendErr(result.Errors, "sync", ctx.Err())
			break
		}
		result.ProductsProcessed++

		images := make([]string, len(p.Images))
		changed := false
		for i, u := range p.Images {
			images[i] = u
			if s.IsMigrated(u) {
				result.ImagesSkipped++
				continue
			}
			newURL, err := s.MigrateImage(ctx, u)
			if err != nil {
				result.Errors = appendErr(result.Errors, fmt.Sprintf("%s [%d]", p.Slug, i), err)
				continue
			}
			images[i] = newURL
			changed = true
			result.ImagesMigrated++
		}

		if !changed {
			continue
		}
		p.Images = images
		if err := s.productRepo.UpdateFields(ctx, p.ID, map[string]interface{}{"images": p.Images}); err != nil {
			result.Errors = appendErr(result.Errors, p.Slug, err)
		}
	}

	s.log.Info("product images synced",
		zap.Int("products", result.ProductsProcessed),
		zap.Int("migrated", result.ImagesMigrated),
		zap.Int("skipped", result.ImagesSkipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func fileNameFromURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return path.Base(raw)
}

var _ ImageMigrator = (*ImageSyncService)(nil)
