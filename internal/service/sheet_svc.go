package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/cache"
	"purin_order/pkg/logger"
	"purin_order/pkg/utils"
)

// OrderPusher 订单推送到表格
type OrderPusher interface {
	PushOrder(ctx context.Context, order *model.Order) error
}

// SheetConfig 表格同步配置
type SheetConfig struct {
	WebhookURL string
	Secret     string
}

const (
	sheetBatchSize   = 100
	sheetDeliveryTTL = 24 * time.Hour
)

// SheetService Google Sheet (Apps Script webhook) 双向同步
type SheetService struct {
	client      *resty.Client
	cfg         SheetConfig
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	images      ImageMigrator
	idem        cache.IdempotencyStore
	log         *zap.Logger
}

// NewSheetService 创建表格同步服务
func NewSheetService(
	cfg SheetConfig,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	images ImageMigrator,
	idem cache.IdempotencyStore,
	log *zap.Logger,
) *SheetService {
	return &SheetService{
		client:      utils.NewClient("", 30*time.Second),
		cfg:         cfg,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		images:      images,
		idem:        idem,
		log:         logger.OrNop(log).Named("sheet"),
	}
}

// ==================== 出站：订单 ====================

// PushOrder 推送单个订单
func (s *SheetService) PushOrder(ctx context.Context, order *model.Order) error {
	return s.push(ctx, "append_orders", []dto.SheetOrderRow{toSheetRow(order)})
}

// ExportOrders 推送 [from, to] 日期范围内的订单（按天，越南时区）
func (s *SheetService) ExportOrders(ctx context.Context, from, to string) (*dto.ExportOrdersResult, error) {
	start, err := parseDate(from, false)
	if err != nil || start == nil {
		return nil, invalid("from", "ngày bắt đầu không hợp lệ")
	}
	end, err := parseDate(to, false)
	if err != nil || end == nil {
		return nil, invalid("to", "ngày kết thúc không hợp lệ")
	}
	endExclusive := end.AddDate(0, 0, 1)
	if !endExclusive.After(*start) {
		return nil, invalid("to", "ngày kết thúc phải sau ngày bắt đầu")
	}

	orders, err := s.orderRepo.ListCreatedBetween(ctx, *start, endExclusive)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	result := &dto.ExportOrdersResult{Total: len(orders), Errors: []string{}}
	for i := 0; i < len(orders); i += sheetBatchSize {
		j := i + sheetBatchSize
		if j > len(orders) {
			j = len(orders)
		}
		rows := make([]dto.SheetOrderRow, 0, j-i)
		for k := i; k < j; k++ {
			rows = append(rows, toSheetRow(&orders[k]))
		}
		if err := s.push(ctx, "export_orders", rows); err != nil {
			result.Errors = appendErr(result.Errors, fmt.Sprintf("rows %d-%d", i+1, j), err)
			continue
		}
		result.Pushed += len(rows)
	}
	return result, nil
}

func (s *SheetService) push(ctx context.Context, action string, rows []dto.SheetOrderRow) error {
	if s.cfg.WebhookURL == "" {
		return ErrSheetDisabled
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(dto.SheetPushPayload{Secret: s.cfg.Secret, Action: action, Rows: rows}).
		Post(s.cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("sheet webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sheet webhook [%d]: %s", resp.StatusCode(), utils.Truncate(resp.String(), 200))
	}
	return nil
}

func toSheetRow(o *model.Order) dto.SheetOrderRow {
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		line := fmt.Sprintf("%s x%d", it.ProductName, it.Quantity)
		if it.Variant != "" {
			line = fmt.Sprintf("%s (%s) x%d", it.ProductName, it.Variant, it.Quantity)
		}
		items = append(items, line)
	}
	return dto.SheetOrderRow{
		OrderNumber:   o.OrderNumber,
		CreatedAt:     o.CreatedAt.In(vnLocation).Format("2006-01-02 15:04"),
		CustomerName:  o.CustomerName,
		Phone:         o.Phone,
		Email:         o.Email,
		Address:       o.Address,
		Province:      o.Province,
		Items:         strings.Join(items, "; "),
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		RefCode:       o.RefCode,
		Note:          o.Note,
	}
}

// ==================== 入站：商品 ====================

// ImportProducts 表格推送的商品行，按 slug upsert
func (s *SheetService) ImportProducts(ctx context.Context, req *dto.ImportProductsRequest) (*dto.ImportProductsResult, error) {
	if s.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.cfg.Secret)) != 1 {
		return nil, ErrInvalidSecret
	}

	result := &dto.ImportProductsResult{Errors: []string{}}

	// 同一次投递只处理一次
	deliveryKey := ""
	if req.DeliveryID != "" && s.idem != nil {
		deliveryKey = "sheet:" + req.DeliveryID
		ok, err := s.idem.MarkProcessed(ctx, deliveryKey, sheetDeliveryTTL)
		if err != nil {
			s.log.Warn("idempotency store unavailable", zap.Error(err))
			deliveryKey = ""
		} else if !ok {
			result.Duplicate = true
			return result, nil
		}
	}

	for i, row := range req.Rows {
		label := fmt.Sprintf("row %d", i+1)
		if row.Slug != "" {
			label = fmt.Sprintf("row %d (%s)", i+1, row.Slug)
		}

		product, err := rowToProduct(row)
		if err != nil {
			result.Errors = appendErr(result.Errors, label, err)
			continue
		}

		if s.images != nil && len(product.Images) > 0 {
			urls, migrated, errs := s.images.MigrateImages(ctx, product.Images)
			product.Images = urls
			result.ImagesMigrated += migrated
			for _, e := range errs {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", label, e))
			}
		}

		if err := s.productRepo.UpsertBySlug(ctx, product); err != nil {
			result.Errors = appendErr(result.Errors, label, err)
			continue
		}
		result.Upserted++
	}

	// 全部失败时释放投递 key，允许表格重试
	if deliveryKey != "" && result.Upserted == 0 && len(req.Rows) > 0 {
		_ = s.idem.Release(ctx, deliveryKey)
	}

	s.log.Info("sheet products imported",
		zap.Int("rows", len(req.Rows)),
		zap.Int("upserted", result.Upserted),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func rowToProduct(row dto.SheetProductRow) (*model.Product, error) {
	slug := strings.TrimSpace(strings.ToLower(row.Slug))
	if slug == "" {
		return nil, invalid("slug", "thiếu slug")
	}
	if strings.TrimSpace(row.Name) == "" {
		return nil, invalid("name", "thiếu tên sản phẩm")
	}
	if row.Price <= 0 {
		return nil, invalid("price", "giá phải lớn hơn 0")
	}

	status := strings.TrimSpace(strings.ToLower(row.Status))
	switch status {
	case "":
		status = model.ProductStatusActive
	case model.ProductStatusActive, model.ProductStatusHidden, model.ProductStatusClosed:
	default:
		return nil, invalid("status", fmt.Sprintf("trạng thái không hợp lệ: %q", row.Status))
	}

	deadline, err := parseDate(row.OrderDeadline, true)
	if err != nil {
		return nil, invalid("order_deadline", err.Error())
	}

	isPreorder := true
	if row.IsPreorder != nil {
		isPreorder = *row.IsPreorder
	}

	images := make([]string, 0, len(row.Images))
	for _, u := range row.Images {
		if u = strings.TrimSpace(u); u != "" {
			images = append(images, u)
		}
	}

	return &model.Product{
		Slug:              slug,
		Name:              strings.TrimSpace(row.Name),
		Description:       row.Description,
		Category:          strings.TrimSpace(row.Category),
		Price:             row.Price,
		OriginalPrice:     row.OriginalPrice,
		Images:            images,
		Variants:          row.Variants,
		Status:            status,
		IsPreorder:        isPreorder,
		OrderDeadline:     deadline,
		EstimatedDelivery: row.EstimatedDelivery,
	}, nil
}

var _ OrderPusher = (*SheetService)(nil)
