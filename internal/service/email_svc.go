package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/pkg/logger"
	"purin_order/pkg/utils"
)

// ==================== 接口定义 ====================

// Mailer 邮件发送接口
type Mailer interface {
	SendOrderEmail(ctx context.Context, req *dto.SendOrderEmailRequest) error
	SendNotification(ctx context.Context, n *model.Notification) error
	SendAdminAlert(ctx context.Context, subject, html string) error
}

// ==================== 配置 ====================

// EmailConfig 邮件配置
type EmailConfig struct {
	APIKey      string
	BaseURL     string
	From        string
	AdminEmails []string
	SiteURL     string
}

// ==================== 服务 ====================

// EmailService 通过 Resend HTTP API 发送邮件
type EmailService struct {
	client *resty.Client
	cfg    EmailConfig
	log    *zap.Logger
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg EmailConfig, log *zap.Logger) *EmailService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	if cfg.From == "" {
		cfg.From = "Purin Order <no-reply@purin.vn>"
	}
	client := utils.NewClient(cfg.BaseURL, 0)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &EmailService{
		client: client,
		cfg:    cfg,
		log:    logger.OrNop(log).Named("email"),
	}
}

// resendRequest Resend /emails 请求体
type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send 发送一封邮件
func (s *EmailService) Send(ctx context.Context, to []string, subject, html string) error {
	if s.cfg.APIKey == "" {
		return ErrEmailDisabled
	}
	if len(to) == 0 {
		return invalid("to", "thiếu người nhận")
	}

	var result resendResponse
	var apiErr resendError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(resendRequest{From: s.cfg.From, To: to, Subject: subject, HTML: html}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("resend request: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.String()
		}
		return fmt.Errorf("resend [%d]: %s", resp.StatusCode(), msg)
	}

	s.log.Debug("email sent", zap.Strings("to", to), zap.String("id", result.ID))
	return nil
}

// SendOrderEmail 发送订单邮件
func (s *EmailService) SendOrderEmail(ctx context.Context, req *dto.SendOrderEmailRequest) error {
	if !IsValidEmail(req.Email) {
		return invalid("email", "email không hợp lệ")
	}
	if strings.TrimSpace(req.OrderNumber) == "" {
		return invalid("order_number", "thiếu mã đơn hàng")
	}

	subject, html, err := renderOrderEmail(req, s.cfg.SiteURL)
	if err != nil {
		return err
	}
	return s.Send(ctx, []string{req.Email}, subject, html)
}

// SendNotification 发送通知邮件
func (s *EmailService) SendNotification(ctx context.Context, n *model.Notification) error {
	link := n.Link
	if link != "" && strings.HasPrefix(link, "/") {
		link = strings.TrimRight(s.cfg.SiteURL, "/") + link
	}

	var buf bytes.Buffer
	if err := notificationTmpl.Execute(&buf, map[string]string{
		"Title":   n.Title,
		"Message": n.Message,
		"Link":    link,
	}); err != nil {
		return fmt.Errorf("render notification: %w", err)
	}
	return s.Send(ctx, []string{n.Email}, n.Title, wrapLayout(buf.String()))
}

// SendAdminAlert 发送管理员提醒
func (s *EmailService) SendAdminAlert(ctx context.Context, subject, html string) error {
	if len(s.cfg.AdminEmails) == 0 {
		return invalid("admin_emails", "chưa cấu hình email quản trị")
	}
	return s.Send(ctx, s.cfg.AdminEmails, subject, wrapLayout(html))
}

// ==================== 模板 ====================

var emailFuncs = template.FuncMap{
	"vnd": FormatVND,
	"mul": func(price int64, qty int) int64 { return price * int64(qty) },
}

var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="vi"><head><meta charset="utf-8"></head>
<body style="font-family:Arial,sans-serif;background:#fdf6f0;padding:24px;color:#333">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:12px;padding:24px">
<h2 style="color:#e8849b;margin-top:0">Purin Order</h2>
{{.}}
<p style="font-size:12px;color:#999;margin-top:32px">Email này được gửi tự động, vui lòng không trả lời.</p>
</div></body></html>`))

var orderTmpl = template.Must(template.New("order").Funcs(emailFuncs).Parse(`
<p>Xin chào {{if .CustomerName}}{{.CustomerName}}{{else}}bạn{{end}},</p>
<p>{{.Intro}}</p>
<p>Mã đơn hàng: <strong>{{.OrderNumber}}</strong>{{if .StatusLabel}}<br>Trạng thái: <strong>{{.StatusLabel}}</strong>{{end}}</p>
{{if .Items}}
<table style="width:100%;border-collapse:collapse">
<tr style="background:#fbe3e8"><th align="left">Sản phẩm</th><th>SL</th><th align="right">Thành tiền</th></tr>
{{range .Items}}<tr><td>{{.Name}}{{if .Variant}} ({{.Variant}}){{end}}</td><td align="center">{{.Quantity}}</td><td align="right">{{vnd (mul .Price .Quantity)}}</td></tr>
{{end}}</table>
{{end}}
{{if .Total}}<p style="text-align:right">Tổng cộng: <strong>{{vnd .Total}}</strong></p>{{end}}
{{if .TrackURL}}<p><a href="{{.TrackURL}}" style="color:#e8849b">Tra cứu đơn hàng</a></p>{{end}}
`))

var notificationTmpl = template.Must(template.New("notification").Parse(`
<h3>{{.Title}}</h3>
<p>{{.Message}}</p>
{{if .Link}}<p><a href="{{.Link}}" style="color:#e8849b">Xem chi tiết</a></p>{{end}}
`))

// orderStatusLabels 状态的越南语名称
var orderStatusLabels = map[string]string{
	model.OrderStatusPendingPayment: "Chờ thanh toán",
	model.OrderStatusPaid:           "Đã thanh toán",
	model.OrderStatusOrdered:        "Đã đặt hàng",
	model.OrderStatusShipping:       "Đang giao hàng",
	model.OrderStatusCompleted:      "Hoàn thành",
	model.OrderStatusCancelled:      "Đã hủy",
}

// StatusLabel 订单状态显示名
func StatusLabel(status string) string {
	if label, ok := orderStatusLabels[status]; ok {
		return label
	}
	return status
}

func wrapLayout(content string) string {
	var buf bytes.Buffer
	// 内容已由子模板转义
	_ = layoutTmpl.Execute(&buf, template.HTML(content))
	return buf.String()
}

// renderOrderEmail 渲染订单邮件，返回主题与 HTML
func renderOrderEmail(req *dto.SendOrderEmailRequest, siteURL string) (string, string, error) {
	data := struct {
		*dto.SendOrderEmailRequest
		Intro       string
		StatusLabel string
		TrackURL    string
	}{SendOrderEmailRequest: req}

	var subject string
	switch req.Type {
	case dto.EmailTypeOrderConfirmation:
		subject = fmt.Sprintf("Xác nhận đơn hàng %s", req.OrderNumber)
		data.Intro = "Cảm ơn bạn đã đặt hàng tại Purin Order! Đơn hàng của bạn đã được ghi nhận."
	case dto.EmailTypeStatusUpdate:
		subject = fmt.Sprintf("Cập nhật đơn hàng %s", req.OrderNumber)
		data.Intro = "Đơn hàng của bạn vừa được cập nhật trạng thái."
		data.StatusLabel = StatusLabel(req.Status)
	case dto.EmailTypePaymentConfirmed:
		subject = fmt.Sprintf("Đã xác nhận thanh toán đơn %s", req.OrderNumber)
		data.Intro = "Chúng tôi đã nhận được thanh toán cho đơn hàng của bạn."
		data.StatusLabel = StatusLabel(model.OrderStatusPaid)
	default:
		return "", "", invalid("type", fmt.Sprintf("loại email không hỗ trợ: %q", req.Type))
	}

	if siteURL != "" {
		data.TrackURL = fmt.Sprintf("%s/tra-cuu?order=%s", strings.TrimRight(siteURL, "/"), req.OrderNumber)
	}

	var buf bytes.Buffer
	if err := orderTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render order email: %w", err)
	}
	return subject, wrapLayout(buf.String()), nil
}

var _ Mailer = (*EmailService)(nil)
