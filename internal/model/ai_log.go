package model

// AICallLog AI调用日志
type AICallLog struct {
	BaseModel

	// 关联
	OrderNumber string `gorm:"size:32;index;comment:订单号" json:"order_number"`
	ImageURL    string `gorm:"size:512;comment:凭证图片" json:"image_url"`

	// 调用信息
	CallType  string `gorm:"size:32;index;comment:调用类型" json:"call_type"`
	ModelName string `gorm:"size:64;comment:模型名称" json:"model_name"`

	// 用量统计
	InputTokens  int `gorm:"default:0;comment:输入token数" json:"input_tokens"`
	OutputTokens int `gorm:"default:0;comment:输出token数" json:"output_tokens"`

	// 识别结果
	ExpectedAmount int64 `gorm:"default:0;comment:订单金额" json:"expected_amount"`
	DetectedAmount int64 `gorm:"default:0;comment:识别金额" json:"detected_amount"`
	Verified       bool  `gorm:"default:false;comment:是否通过" json:"verified"`

	DurationMs int64 `gorm:"comment:耗时(毫秒)" json:"duration_ms"`

	// 状态
	Status   string `gorm:"size:32;index;default:success;comment:状态(success/failed)" json:"status"`
	ErrorMsg string `gorm:"size:1024;comment:错误信息" json:"error_msg,omitempty"`
}

func (AICallLog) TableName() string {
	return "ai_call_logs"
}

// ==================== 调用类型常量 ====================

const (
	AICallTypePaymentProof = "payment_proof"
)

// ==================== 状态常量 ====================

const (
	AICallStatusSuccess = "success"
	AICallStatusFailed  = "failed"
)
