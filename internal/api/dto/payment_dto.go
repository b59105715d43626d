package dto

// VerifyPaymentRequest 付款凭证核验请求
type VerifyPaymentRequest struct {
	ImageURL    string `json:"image_url"`
	OrderTotal  int64  `json:"order_total"`
	OrderNumber string `json:"order_number"`
}

// PaymentVerdict 模型返回的核验结论
type PaymentVerdict struct {
	IsValid         bool    `json:"is_valid"`
	DetectedAmount  int64   `json:"detected_amount"`
	TransferContent string  `json:"transfer_content"`
	BankName        string  `json:"bank_name"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// VerifyPaymentResponse 核验响应
type VerifyPaymentResponse struct {
	PaymentVerdict
	AmountMatches bool `json:"amount_matches"`
	Verified      bool `json:"verified"`
	OrderUpdated  bool `json:"order_updated"`
}
