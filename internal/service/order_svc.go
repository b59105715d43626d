package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/cache"
	"purin_order/pkg/logger"
)

// ==================== 配置 ====================

// OrderConfig 订单业务参数
type OrderConfig struct {
	ShippingFee           int64 // 固定运费
	FreeShippingThreshold int64 // 免运费门槛，0 表示不免
	AutoCompleteDays      int   // 配送中超过该天数自动完成
	MaxQuantityPerLine    int
}

const (
	checkoutIdempotencyTTL = 24 * time.Hour
	orderNumberRetries     = 5
	autoCompleteNote       = "auto-completed"
)

// ==================== 服务 ====================

// OrderService 订单服务
type OrderService struct {
	orderRepo     repository.OrderRepository
	productRepo   repository.ProductRepository
	affiliateRepo repository.AffiliateRepository
	notifRepo     repository.NotificationRepository
	mailer        Mailer
	pusher        OrderPusher
	idem          cache.IdempotencyStore
	cfg           OrderConfig
	log           *zap.Logger
	now           func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	affiliateRepo repository.AffiliateRepository,
	notifRepo repository.NotificationRepository,
	mailer Mailer,
	pusher OrderPusher,
	idem cache.IdempotencyStore,
	cfg OrderConfig,
	log *zap.Logger,
) *OrderService {
	if cfg.AutoCompleteDays <= 0 {
		cfg.AutoCompleteDays = 7
	}
	if cfg.MaxQuantityPerLine <= 0 {
		cfg.MaxQuantityPerLine = 99
	}
	return &OrderService{
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		affiliateRepo: affiliateRepo,
		notifRepo:     notifRepo,
		mailer:        mailer,
		pusher:        pusher,
		idem:          idem,
		cfg:           cfg,
		log:           logger.OrNop(log).Named("order"),
		now:           time.Now,
	}
}

// ==================== 购物车报价 ====================

// QuoteCart 按当前商品价格重新计算客户端购物车
func (s *OrderService) QuoteCart(ctx context.Context, items []dto.CartItem) (*dto.CartQuote, error) {
	quote := &dto.CartQuote{Lines: []dto.CartLine{}, Errors: []dto.LineError{}}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[int64]*model.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	now := s.now()
	for i, it := range items {
		lineErr := func(reason string) {
			quote.Errors = append(quote.Errors, dto.LineError{Index: i, ProductID: it.ProductID, Reason: reason})
		}

		if it.Quantity < 1 {
			lineErr("số lượng phải lớn hơn 0")
			continue
		}
		if it.Quantity > s.cfg.MaxQuantityPerLine {
			lineErr(fmt.Sprintf("số lượng tối đa là %d", s.cfg.MaxQuantityPerLine))
			continue
		}
		p, ok := byID[it.ProductID]
		if !ok {
			lineErr("sản phẩm không tồn tại")
			continue
		}
		if !p.IsOrderable(now) {
			lineErr("sản phẩm đã ngừng nhận đặt trước")
			continue
		}
		variant := strings.TrimSpace(it.Variant)
		if !p.HasVariant(variant) {
			lineErr("phân loại không hợp lệ")
			continue
		}

		line := dto.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Variant:   variant,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			LineTotal: p.Price * int64(it.Quantity),
			ImageURL:  p.CoverImage(),
		}
		quote.Lines = append(quote.Lines, line)
		quote.Subtotal += line.LineTotal
	}

	quote.ShippingFee = s.shippingFee(quote.Subtotal, len(quote.Lines))
	quote.Total = quote.Subtotal + quote.ShippingFee
	return quote, nil
}

func (s *OrderService) shippingFee(subtotal int64, lines int) int64 {
	if lines == 0 {
		return 0
	}
	if s.cfg.FreeShippingThreshold > 0 && subtotal >= s.cfg.FreeShippingThreshold {
		return 0
	}
	return s.cfg.ShippingFee
}

// ==================== 下单 ====================

// Checkout 校验、报价、归因并在一个事务中写入订单
func (s *OrderService) Checkout(ctx context.Context, req *dto.CheckoutRequest, profileID *int64, idempotencyKey string) (resp *dto.CheckoutResponse, err error) {
	// 重复提交保护
	if key := strings.TrimSpace(idempotencyKey); key != "" && s.idem != nil {
		storeKey := "checkout:" + key
		ok, markErr := s.idem.MarkProcessed(ctx, storeKey, checkoutIdempotencyTTL)
		switch {
		case markErr != nil:
			s.log.Warn("idempotency store unavailable", zap.Error(markErr))
		case !ok:
			return nil, ErrDuplicateSubmission
		default:
			defer func() {
				// 失败的请求允许用同一个 key 重试
				if err != nil {
					_ = s.idem.Release(context.WithoutCancel(ctx), storeKey)
				}
			}()
		}
	}

	if err := validateCustomer(req); err != nil {
		return nil, err
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = model.PaymentMethodBankTransfer
	}
	if paymentMethod != model.PaymentMethodBankTransfer && paymentMethod != model.PaymentMethodCOD {
		return nil, invalid("payment_method", "phương thức thanh toán không hợp lệ")
	}
	if len(req.Items) == 0 {
		return nil, invalid("items", "giỏ hàng trống")
	}

	quote, err := s.QuoteCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if len(quote.Errors) > 0 {
		first := quote.Errors[0]
		return nil, invalid(fmt.Sprintf("items[%d]", first.Index), first.Reason)
	}

	order := &model.Order{
		ProfileID:     profileID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Phone:         NormalizePhone(req.Phone),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Address:       strings.TrimSpace(req.Address),
		Province:      strings.TrimSpace(req.Province),
		Note:          strings.TrimSpace(req.Note),
		Subtotal:      quote.Subtotal,
		ShippingFee:   quote.ShippingFee,
		Total:         quote.Total,
		PaymentMethod: paymentMethod,
		Status:        model.OrderStatusPendingPayment,
	}
	for _, line := range quote.Lines {
		order.Items = append(order.Items, model.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Variant:     line.Variant,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			ImageURL:    line.ImageURL,
		})
	}

	if aff := s.resolveAffiliate(ctx, req.RefCode, order.Email, profileID); aff != nil {
		order.AffiliateID = &aff.ID
		order.RefCode = aff.RefCode
	}

	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return nil, err
	}
	order.OrderNumber = number

	var changedBy int64
	if profileID != nil {
		changedBy = *profileID
	}
	err = s.orderRepo.Transaction(ctx, func(txRepo repository.OrderRepository) error {
		if err := txRepo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return txRepo.AddHistory(ctx, &model.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  model.OrderStatusPendingPayment,
			ChangedBy: changedBy,
			Note:      "order created",
			ChangedAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total),
		zap.String("ref_code", order.RefCode))

	s.afterCheckout(ctx, order)

	return &dto.CheckoutResponse{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		CreatedAt:     order.CreatedAt,
	}, nil
}

// afterCheckout 邮件与表格推送，失败只记录日志
func (s *OrderService) afterCheckout(ctx context.Context, order *model.Order) {
	ctx = context.WithoutCancel(ctx)

	if s.mailer != nil && order.Email != "" {
		if err := s.mailer.SendOrderEmail(ctx, orderEmailRequest(order, dto.EmailTypeOrderConfirmation)); err != nil {
			s.log.Warn("send confirmation email failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		}
	}
	if s.pusher != nil {
		if err := s.pusher.PushOrder(ctx, order); err != nil && !errors.Is(err, ErrSheetDisabled) {
			s.log.Warn("push order to sheet failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
		}
	}
	if order.ProfileID != nil {
		if err := s.notifRepo.Create(ctx, &model.Notification{
			ProfileID: order.ProfileID,
			OrderID:   &order.ID,
			Type:      model.NotificationOrderCreated,
			Title:     fmt.Sprintf("Đã tạo đơn hàng %s", order.OrderNumber),
			Message:   fmt.Sprintf("Tổng thanh toán %s", FormatVND(order.Total)),
			Link:      "/don-hang/" + order.OrderNumber,
		}); err != nil {
			s.log.Warn("create order notification failed", zap.Error(err))
		}
	}
}

// resolveAffiliate 推广码归因；自己推荐自己不计
func (s *OrderService) resolveAffiliate(ctx context.Context, refCode, email string, profileID *int64) *model.Affiliate {
	refCode = strings.ToUpper(strings.TrimSpace(refCode))
	if refCode == "" || s.affiliateRepo == nil {
		return nil
	}

	aff, err := s.affiliateRepo.GetByRefCode(ctx, refCode)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("lookup ref code failed", zap.String("ref_code", refCode), zap.Error(err))
		}
		return nil
	}
	if aff.Status != model.AffiliateStatusActive {
		return nil
	}
	if profileID != nil && *profileID == aff.ProfileID {
		return nil
	}
	if aff.Profile != nil && strings.EqualFold(aff.Profile.Email, email) {
		return nil
	}
	return aff
}

// generateOrderNumber PO + yyMMdd + 5 位随机数
func (s *OrderService) generateOrderNumber(ctx context.Context) (string, error) {
	prefix := "PO" + s.now().In(vnLocation).Format("060102")
	for i := 0; i < orderNumberRetries; i++ {
		number := fmt.Sprintf("%s%05d", prefix, rand.IntN(100000))
		exists, err := s.orderRepo.ExistsByOrderNumber(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("không tạo được mã đơn hàng, vui lòng thử lại")
}

func validateCustomer(req *dto.CheckoutRequest) error {
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return invalid("customer_name", "vui lòng nhập họ tên")
	}
	if len([]rune(name)) > 128 {
		return invalid("customer_name", "họ tên quá dài")
	}
	if !IsValidVNPhone(req.Phone) {
		return invalid("phone", "số điện thoại không hợp lệ")
	}
	if !IsValidEmail(req.Email) {
		return invalid("email", "email không hợp lệ")
	}
	if len([]rune(strings.TrimSpace(req.Address))) < 5 {
		return invalid("address", "vui lòng nhập địa chỉ nhận hàng")
	}
	return nil
}

func orderEmailRequest(order *model.Order, emailType string) *dto.SendOrderEmailRequest {
	items := make([]dto.EmailItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, dto.EmailItem{
			Name:     it.ProductName,
			Variant:  it.Variant,
			Quantity: it.Quantity,
			Price:    it.UnitPrice,
		})
	}
	return &dto.SendOrderEmailRequest{
		Email:        order.Email,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Items:        items,
		Total:        order.Total,
		Type:         emailType,
		Status:       order.Status,
	}
}

// ==================== 查询 ====================

// TrackOrder 订单号 + 手机号或邮箱查询；联系方式不匹配按不存在处理
func (s *OrderService) TrackOrder(ctx context.Context, orderNumber, contact string) (*model.Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	contact = strings.TrimSpace(contact)
	if orderNumber == "" || contact == "" {
		return nil, invalid("order_number", "vui lòng nhập mã đơn hàng và số điện thoại/email")
	}

	order, err := s.orderRepo.GetByOrderNumberWithRelations(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if !contactMatches(order, contact) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func contactMatches(order *model.Order, contact string) bool {
	if strings.Contains(contact, "@") {
		return order.Email != "" && strings.EqualFold(order.Email, contact)
	}
	phone := NormalizePhone(contact)
	return phone != "" && localPhone(phone) == localPhone(order.Phone)
}

// localPhone 84xxxxxxxxx -> 0xxxxxxxxx
func localPhone(phone string) string {
	if strings.HasPrefix(phone, "84") && len(phone) == 11 {
		return "0" + phone[2:]
	}
	return phone
}

// ListMyOrders 当前用户的订单
func (s *OrderService) ListMyOrders(ctx context.Context, profileID int64, page, pageSize int) (*dto.ListOrdersResponse, error) {
	page, pageSize = normalizePage(page, pageSize)
	orders, total, err := s.orderRepo.List(ctx, repository.OrderFilter{
		ProfileID: &profileID,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list my orders: %w", err)
	}
	return &dto.ListOrdersResponse{Total: total, Page: page, PageSize: pageSize, List: orders}, nil
}

// ListOrders 管理员订单列表
func (s *OrderService) ListOrders(ctx context.Context, req *dto.ListOrdersRequest) (*dto.ListOrdersResponse, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	filter := repository.OrderFilter{
		Status:   req.Status,
		Keyword:  strings.TrimSpace(req.Keyword),
		Page:     page,
		PageSize: pageSize,
	}
	if req.StartDate != "" {
		start, err := parseDate(req.StartDate, false)
		if err != nil {
			return nil, invalid("start_date", err.Error())
		}
		filter.StartDate = start
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate, true)
		if err != nil {
			return nil, invalid("end_date", err.Error())
		}
		filter.EndDate = end
	}

	orders, total, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &dto.ListOrdersResponse{Total: total, Page: page, PageSize: pageSize, List: orders}, nil
}

// GetOrder 订单详情（含明细与状态历史）
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByIDWithRelations(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ==================== 状态流转 ====================

// UpdateOrderStatus 管理员变更状态，写历史并通知顾客
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status, note string, operatorID int64) (*model.Order, error) {
	if !model.IsValidOrderStatus(status) {
		return nil, invalid("status", fmt.Sprintf("trạng thái không hợp lệ: %q", status))
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if err := s.transition(ctx, order, status, strings.TrimSpace(note), operatorID); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, id)
}

// transition 校验并执行状态流转
func (s *OrderService) transition(ctx context.Context, order *model.Order, to, note string, changedBy int64) error {
	from := order.Status
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.now()
	fields := map[string]interface{}{"status": to}
	if to == model.OrderStatusPaid && order.PaymentVerifiedAt == nil {
		fields["payment_verified_at"] = now
	}

	err := s.orderRepo.Transaction(ctx, func(txRepo repository.OrderRepository) error {
		ok, err := txRepo.UpdateStatusFrom(ctx, order.ID, from, fields)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		// 读取之后状态已被其他请求或定时任务改动
		if !ok {
			return fmt.Errorf("%w: %s -> %s, status changed concurrently", ErrInvalidTransition, from, to)
		}
		return txRepo.AddHistory(ctx, &model.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   to,
			ChangedBy:  changedBy,
			Note:       note,
			ChangedAt:  now,
		})
	})
	if err != nil {
		return err
	}
	order.Status = to

	s.notifyStatusChange(ctx, order, note)
	s.log.Info("order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", from), zap.String("to", to),
		zap.Int64("changed_by", changedBy))
	return nil
}

// notifyStatusChange 通知写入后由邮件任务投递
func (s *OrderService) notifyStatusChange(ctx context.Context, order *model.Order, note string) {
	msg := fmt.Sprintf("Đơn hàng %s đã chuyển sang trạng thái \"%s\".", order.OrderNumber, StatusLabel(order.Status))
	if note != "" && note != autoCompleteNote {
		msg += " " + note
	}
	n := &model.Notification{
		ProfileID: order.ProfileID,
		OrderID:   &order.ID,
		Type:      model.NotificationOrderStatus,
		Title:     fmt.Sprintf("Cập nhật đơn hàng %s", order.OrderNumber),
		Message:   msg,
		Link:      "/don-hang/" + order.OrderNumber,
		Email:     order.Email,
	}
	if err := s.notifRepo.Create(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn("create status notification failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

// ==================== 自动完成 ====================

// AutoCompleteOrders 配送中超过 N 天（严格大于）的订单自动完成
func (s *OrderService) AutoCompleteOrders(ctx context.Context, now time.Time) (*dto.AutoCompleteResult, error) {
	orders, err := s.orderRepo.ListByStatus(ctx, model.OrderStatusShipping)
	if err != nil {
		return nil, fmt.Errorf("list shipping orders: %w", err)
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	entered, err := s.orderRepo.LatestStatusEntries(ctx, ids, model.OrderStatusShipping)
	if err != nil {
		return nil, fmt.Errorf("load shipping history: %w", err)
	}

	cutoff := time.Duration(s.cfg.AutoCompleteDays) * 24 * time.Hour
	result := &dto.AutoCompleteResult{Completed: []string{}, Errors: []string{}}

	for i := range orders {
		order := &orders[i]
		if ctx.Err() != nil {
			result.Errors = appendErr(result.Errors, "auto-complete", ctx.Err())
			break
		}
		result.Processed++

		since, ok := entered[order.ID]
		if !ok {
			since = order.UpdatedAt
		}
		if now.Sub(since) <= cutoff {
			continue
		}

		if err := s.transition(ctx, order, model.OrderStatusCompleted, autoCompleteNote, 0); err != nil {
			result.Errors = appendErr(result.Errors, order.OrderNumber, err)
			continue
		}
		result.Completed = append(result.Completed, order.OrderNumber)
	}

	s.log.Info("auto-complete finished",
		zap.Int("processed", result.Processed),
		zap.Int("completed", len(result.Completed)),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// ==================== 付款凭证 ====================

// AttachPaymentProof 保存凭证 URL，不改变订单状态
func (s *OrderService) AttachPaymentProof(ctx context.Context, orderNumber, proofURL string, verifiedAt time.Time) (*model.Order, error) {
	order, err := s.orderRepo.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if err := s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"payment_proof_url":   proofURL,
		"payment_verified_at": verifiedAt,
	}); err != nil {
		return nil, fmt.Errorf("attach payment proof: %w", err)
	}
	order.PaymentProofURL = proofURL
	order.PaymentVerifiedAt = &verifiedAt
	return order, nil
}
