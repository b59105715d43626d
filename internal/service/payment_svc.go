package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
	"purin_order/pkg/utils"
)

// ==================== 模型调用 ====================

// AIUsage 单次调用用量
type AIUsage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// ProofAnalyzer 付款截图识别
type ProofAnalyzer interface {
	AnalyzeProof(ctx context.Context, image []byte, mimeType string, expectedTotal int64) (*dto.PaymentVerdict, *AIUsage, error)
}

// GeminiAnalyzer 基于 Gemini 多模态模型
type GeminiAnalyzer struct {
	apiKey string
	model  string
}

// NewGeminiAnalyzer 创建 Gemini 识别器
func NewGeminiAnalyzer(apiKey, modelName string) *GeminiAnalyzer {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GeminiAnalyzer{apiKey: apiKey, model: modelName}
}

const proofPrompt = `Bạn là trợ lý kiểm tra ảnh chụp màn hình chuyển khoản ngân hàng tại Việt Nam.
Số tiền đơn hàng cần thanh toán: %d VND.

Hãy đọc ảnh và trả về JSON (không dùng markdown):
{
  "is_valid": true nếu đây là ảnh chuyển khoản thành công thật, false nếu không,
  "detected_amount": số tiền đã chuyển (số nguyên VND, 0 nếu không đọc được),
  "transfer_content": "nội dung chuyển khoản",
  "bank_name": "tên ngân hàng",
  "confidence": số từ 0 đến 1,
  "reason": "giải thích ngắn gọn bằng tiếng Việt"
}`

// AnalyzeProof 调用模型识别转账截图
func (a *GeminiAnalyzer) AnalyzeProof(ctx context.Context, image []byte, mimeType string, expectedTotal int64) (*dto.PaymentVerdict, *AIUsage, error) {
	if a.apiKey == "" {
		return nil, nil, ErrAIDisabled
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("Gemini 初始化失败: %w", err)
	}
	defer client.Close()

	gm := client.GenerativeModel(a.model)
	gm.ResponseMIMEType = "application/json"

	resp, err := gm.GenerateContent(ctx,
		genai.ImageData(imageFormat(mimeType), image),
		genai.Text(fmt.Sprintf(proofPrompt, expectedTotal)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("Gemini 调用失败: %w", err)
	}

	usage := &AIUsage{Model: a.model}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, usage, fmt.Errorf("Gemini 返回为空")
	}
	var raw string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw = string(txt)
			break
		}
	}

	verdict, err := parseVerdict(raw)
	return verdict, usage, err
}

// parseVerdict 去掉可能的 ``` 包裹后解析
func parseVerdict(raw string) (*dto.PaymentVerdict, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var v dto.PaymentVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %w | 原始数据: %s", err, utils.Truncate(raw, 300))
	}
	return &v, nil
}

// imageFormat image/png -> png
func imageFormat(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	switch f := strings.TrimPrefix(mimeType, "image/"); f {
	case "png", "webp", "heic", "heif":
		return f
	default:
		return "jpeg"
	}
}

var _ ProofAnalyzer = (*GeminiAnalyzer)(nil)

// ==================== 服务 ====================

// PaymentService 付款凭证核验
type PaymentService struct {
	analyzer  ProofAnalyzer
	orderRepo repository.OrderRepository
	notifRepo repository.NotificationRepository
	aiLogRepo repository.AICallLogRepository
	download  func(ctx context.Context, url string) ([]byte, string, error)
	log       *zap.Logger
	now       func() time.Time
}

// NewPaymentService 创建付款核验服务
func NewPaymentService(
	analyzer ProofAnalyzer,
	orderRepo repository.OrderRepository,
	notifRepo repository.NotificationRepository,
	aiLogRepo repository.AICallLogRepository,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		analyzer:  analyzer,
		orderRepo: orderRepo,
		notifRepo: notifRepo,
		aiLogRepo: aiLogRepo,
		download:  utils.DownloadImage,
		log:       logger.OrNop(log).Named("payment"),
		now:       time.Now,
	}
}

// VerifyPaymentProof 识别截图并比对金额；核验通过且带订单号时记录凭证，不改变订单状态
func (s *PaymentService) VerifyPaymentProof(ctx context.Context, req *dto.VerifyPaymentRequest) (*dto.VerifyPaymentResponse, error) {
	imageURL := strings.TrimSpace(req.ImageURL)
	if !isHTTPURL(imageURL) {
		return nil, invalid("image_url", "đường dẫn ảnh không hợp lệ")
	}
	if req.OrderTotal <= 0 {
		return nil, invalid("order_total", "số tiền đơn hàng phải lớn hơn 0")
	}

	orderNumber := strings.ToUpper(strings.TrimSpace(req.OrderNumber))
	var order *model.Order
	if orderNumber != "" {
		o, err := s.orderRepo.GetByOrderNumber(ctx, orderNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
		order = o
		// 金额以订单为准，客户端传入的金额必须一致
		if req.OrderTotal != order.Total {
			return nil, ErrAmountMismatch
		}
	}
	expected := req.OrderTotal
	if order != nil {
		expected = order.Total
	}

	data, contentType, err := s.download(ctx, imageURL)
	if err != nil {
		// 下载细节只写日志，不回传调用方
		s.log.Warn("download payment proof failed", zap.String("image_url", imageURL), zap.Error(err))
		return nil, invalid("image_url", "không tải được ảnh")
	}

	start := s.now()
	verdict, usage, err := s.analyzer.AnalyzeProof(ctx, data, contentType, expected)
	callLog := &model.AICallLog{
		OrderNumber:    orderNumber,
		ImageURL:       imageURL,
		CallType:       model.AICallTypePaymentProof,
		ExpectedAmount: expected,
		DurationMs:     time.Since(start).Milliseconds(),
		Status:         model.AICallStatusSuccess,
	}
	if usage != nil {
		callLog.ModelName = usage.Model
		callLog.InputTokens = usage.InputTokens
		callLog.OutputTokens = usage.OutputTokens
	}
	if err != nil {
		callLog.Status = model.AICallStatusFailed
		callLog.ErrorMsg = utils.Truncate(err.Error(), 1000)
		s.saveCallLog(ctx, callLog)
		return nil, err
	}

	resp := &dto.VerifyPaymentResponse{PaymentVerdict: *verdict}
	resp.AmountMatches = verdict.DetectedAmount >= expected
	resp.Verified = verdict.IsValid && resp.AmountMatches

	callLog.DetectedAmount = verdict.DetectedAmount
	callLog.Verified = resp.Verified
	s.saveCallLog(ctx, callLog)

	if order != nil && resp.Verified {
		if err := s.recordProof(ctx, order, imageURL); err != nil {
			s.log.Error("record payment proof failed", zap.String("order_number", orderNumber), zap.Error(err))
		} else {
			resp.OrderUpdated = true
		}
	}

	s.log.Info("payment proof verified",
		zap.String("order_number", orderNumber),
		zap.Int64("expected", expected),
		zap.Int64("detected", verdict.DetectedAmount),
		zap.Bool("verified", resp.Verified))
	return resp, nil
}

func (s *PaymentService) recordProof(ctx context.Context, order *model.Order, imageURL string) error {
	if err := s.orderRepo.UpdateFields(ctx, order.ID, map[string]interface{}{
		"payment_proof_url":   imageURL,
		"payment_verified_at": s.now(),
	}); err != nil {
		return err
	}
	return s.notifRepo.Create(ctx, &model.Notification{
		OrderID: &order.ID,
		Type:    model.NotificationPaymentProof,
		Title:   fmt.Sprintf("Đơn %s đã gửi chứng từ chuyển khoản", order.OrderNumber),
		Message: fmt.Sprintf("Chứng từ hợp lệ cho số tiền %s. Vui lòng xác nhận thanh toán.", FormatVND(order.Total)),
		Link:    fmt.Sprintf("/admin/orders/%d", order.ID),
	})
}

func (s *PaymentService) saveCallLog(ctx context.Context, l *model.AICallLog) {
	if s.aiLogRepo == nil {
		return
	}
	if err := s.aiLogRepo.Create(context.WithoutCancel(ctx), l); err != nil {
		s.log.Warn("save ai call log failed", zap.Error(err))
	}
}

// Usage AI 用量统计（管理员）
func (s *PaymentService) Usage(ctx context.Context, month string) (*repository.AIUsageStats, error) {
	if month == "" {
		month = currentMonth(s.now())
	}
	start, end, err := monthRange(month)
	if err != nil {
		return nil, err
	}
	return s.aiLogRepo.GetUsage(ctx, start, end)
}
