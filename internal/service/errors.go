package service

import (
	"errors"
	"fmt"
)

// ==================== 错误分类 ====================

// 控制器按分类映射 HTTP 状态码
var (
	ErrValidation   = errors.New("validation")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// kindError 带分类的业务错误，errors.Is 既能匹配自身也能匹配分类
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// ValidationError 参数校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ==================== 业务错误 ====================

var (
	ErrProductNotFound    = newKindError(ErrNotFound, "không tìm thấy sản phẩm")
	ErrOrderNotFound      = newKindError(ErrNotFound, "không tìm thấy đơn hàng")
	ErrAffiliateNotFound  = newKindError(ErrNotFound, "không tìm thấy cộng tác viên")
	ErrUserNotFound       = newKindError(ErrNotFound, "không tìm thấy tài khoản")
	ErrCommissionNotFound = newKindError(ErrNotFound, "không tìm thấy hoa hồng tháng này")

	ErrAmountMismatch = newKindError(ErrValidation, "số tiền không khớp với đơn hàng")

	ErrSlugExists          = newKindError(ErrConflict, "slug đã tồn tại")
	ErrEmailExists         = newKindError(ErrConflict, "email đã được đăng ký")
	ErrAffiliateExists     = newKindError(ErrConflict, "tài khoản đã đăng ký cộng tác viên")
	ErrInvalidTransition   = newKindError(ErrConflict, "không thể chuyển trạng thái đơn hàng")
	ErrDuplicateSubmission = newKindError(ErrConflict, "yêu cầu đã được xử lý")
	ErrCommissionPaid      = newKindError(ErrConflict, "hoa hồng đã được thanh toán")

	ErrInvalidCredentials = newKindError(ErrUnauthorized, "email hoặc mật khẩu không đúng")
	ErrInvalidToken       = newKindError(ErrUnauthorized, "token không hợp lệ")
	ErrInvalidSecret      = newKindError(ErrUnauthorized, "secret không hợp lệ")
	ErrUserDisabled       = newKindError(ErrForbidden, "tài khoản đã bị khóa")

	ErrEmailDisabled = errors.New("email provider chưa được cấu hình")
	ErrSheetDisabled = errors.New("sheet webhook chưa được cấu hình")
	ErrAIDisabled    = errors.New("Gemini API key chưa được cấu hình")
)
