package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
)

// ProductService 商品目录服务
type ProductService struct {
	productRepo    repository.ProductRepository
	notifRepo      repository.NotificationRepository
	mailer         Mailer
	expiringWindow time.Duration
	log            *zap.Logger
}

// NewProductService 创建商品服务
func NewProductService(
	productRepo repository.ProductRepository,
	notifRepo repository.NotificationRepository,
	mailer Mailer,
	expiringWindow time.Duration,
	log *zap.Logger,
) *ProductService {
	if expiringWindow <= 0 {
		expiringWindow = 24 * time.Hour
	}
	return &ProductService{
		productRepo:    productRepo,
		notifRepo:      notifRepo,
		mailer:         mailer,
		expiringWindow: expiringWindow,
		log:            logger.OrNop(log).Named("product"),
	}
}

// ==================== 查询 ====================

// ListProducts 商品列表；非管理员只能看到非隐藏商品
func (s *ProductService) ListProducts(ctx context.Context, req *dto.ListProductsRequest, isAdmin bool) (*dto.ProductListResponse, error) {
	filter := repository.ProductFilter{
		Category: req.Category,
		Keyword:  strings.TrimSpace(req.Keyword),
		Status:   req.Status,
		Visible:  !isAdmin,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize)

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return &dto.ProductListResponse{
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		List:     products,
	}, nil
}

// GetProductBySlug 商品详情
func (s *ProductService) GetProductBySlug(ctx context.Context, slug string, isAdmin bool) (*model.Product, error) {
	product, err := s.productRepo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !isAdmin && product.Status == model.ProductStatusHidden {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ==================== 管理 ====================

// CreateProduct 创建商品
func (s *ProductService) CreateProduct(ctx context.Context, req *dto.CreateProductRequest) (*model.Product, error) {
	slug := strings.TrimSpace(strings.ToLower(req.Slug))
	if slug == "" || strings.ContainsAny(slug, " /?#") {
		return nil, invalid("slug", "slug không hợp lệ")
	}
	existing, err := s.productRepo.GetBySlugUnscoped(ctx, slug)
	if err == nil && !existing.DeletedAt.Valid {
		return nil, ErrSlugExists
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = model.ProductStatusActive
	}
	isPreorder := true
	if req.IsPreorder != nil {
		isPreorder = *req.IsPreorder
	}

	product := &model.Product{
		Slug:              slug,
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Category:          req.Category,
		Price:             req.Price,
		OriginalPrice:     req.OriginalPrice,
		Images:            req.Images,
		Variants:          req.Variants,
		Status:            status,
		IsPreorder:        isPreorder,
		OrderDeadline:     req.OrderDeadline,
		EstimatedDelivery: req.EstimatedDelivery,
		SortOrder:         req.SortOrder,
	}

	// 同 slug 的已删除商品原地恢复，保留 ID 以免历史订单失联
	if existing != nil {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
		if err := s.productRepo.Restore(ctx, product); err != nil {
			return nil, fmt.Errorf("restore product: %w", err)
		}
		s.log.Info("deleted product restored", zap.String("slug", slug), zap.Int64("id", product.ID))
		return product, nil
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// UpdateProduct 更新商品
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, req *dto.UpdateProductRequest) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.OriginalPrice != nil {
		product.OriginalPrice = *req.OriginalPrice
	}
	if req.Images != nil {
		product.Images = req.Images
	}
	if req.Variants != nil {
		product.Variants = req.Variants
	}
	if req.Status != nil {
		product.Status = *req.Status
	}
	if req.IsPreorder != nil {
		product.IsPreorder = *req.IsPreorder
	}
	if req.ClearDeadline {
		product.OrderDeadline = nil
		product.ExpiryNotifiedAt = nil
	} else if req.OrderDeadline != nil {
		product.OrderDeadline = req.OrderDeadline
		product.ExpiryNotifiedAt = nil
	}
	if req.EstimatedDelivery != nil {
		product.EstimatedDelivery = *req.EstimatedDelivery
	}
	if req.SortOrder != nil {
		product.SortOrder = *req.SortOrder
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// DeleteProduct 删除商品（软删除）
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.productRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	return s.productRepo.Delete(ctx, id)
}

// ==================== 截止检查 ====================

// CheckExpiringProducts 即将截止的商品提醒管理员，已截止的商品关闭
func (s *ProductService) CheckExpiringProducts(ctx context.Context, now time.Time) (*dto.ExpiringCheckResult, error) {
	candidates, err := s.productRepo.ListExpiringBefore(ctx, now.Add(s.expiringWindow))
	if err != nil {
		return nil, fmt.Errorf("list expiring products: %w", err)
	}

	result := &dto.ExpiringCheckResult{
		ExpiringSoon: []dto.ExpiringProduct{},
		Closed:       []string{},
		Errors:       []string{},
	}

	var soon []model.Product
	for _, p := range candidates {
		if !p.OrderDeadline.After(now) {
			if err := s.productRepo.UpdateFields(ctx, p.ID, map[string]interface{}{
				"status": model.ProductStatusClosed,
			}); err != nil {
				result.Errors = appendErr(result.Errors, p.Slug, err)
				continue
			}
			result.Closed = append(result.Closed, p.Slug)
			continue
		}
		if p.ExpiryNotifiedAt != nil {
			continue
		}
		soon = append(soon, p)
		result.ExpiringSoon = append(result.ExpiringSoon, dto.ExpiringProduct{
			ID:            p.ID,
			Slug:          p.Slug,
			Name:          p.Name,
			OrderDeadline: *p.OrderDeadline,
		})
	}

	if len(soon) > 0 {
		s.notifyExpiring(ctx, soon, now, result)
	}

	s.log.Info("expiring products checked",
		zap.Int("expiring_soon", len(result.ExpiringSoon)),
		zap.Int("closed", len(result.Closed)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *ProductService) notifyExpiring(ctx context.Context, products []model.Product, now time.Time, result *dto.ExpiringCheckResult) {
	names := make([]string, 0, len(products))
	var rows strings.Builder
	for _, p := range products {
		names = append(names, p.Name)
		rows.WriteString(fmt.Sprintf("<li><strong>%s</strong> (%s) - hạn chót %s</li>",
			html.EscapeString(p.Name), html.EscapeString(p.Slug),
			p.OrderDeadline.In(vnLocation).Format("15:04 02/01/2006")))
	}

	title := fmt.Sprintf("%d sản phẩm sắp hết hạn đặt trước", len(products))
	if err := s.notifRepo.Create(ctx, &model.Notification{
		Type:    model.NotificationProductExpiry,
		Title:   title,
		Message: strings.Join(names, ", "),
		Link:    "/admin/products",
	}); err != nil {
		result.Errors = appendErr(result.Errors, "notification", err)
	}

	if s.mailer != nil {
		body := fmt.Sprintf("<p>Các sản phẩm sau sẽ hết hạn đặt trước trong %d giờ tới:</p><ul>%s</ul>",
			int(s.expiringWindow.Hours()), rows.String())
		if err := s.mailer.SendAdminAlert(ctx, title, body); err != nil {
			result.Errors = appendErr(result.Errors, "admin email", err)
		}
	}

	for _, p := range products {
		if err := s.productRepo.UpdateFields(ctx, p.ID, map[string]interface{}{
			"expiry_notified_at": now,
		}); err != nil {
			result.Errors = appendErr(result.Errors, p.Slug, err)
		}
	}
}
