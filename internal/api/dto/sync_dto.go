package dto

// SheetProductRow 表格中的商品行
type SheetProductRow struct {
	Slug              string   `json:"slug"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Price             int64    `json:"price"`
	OriginalPrice     int64    `json:"original_price"`
	Images            []string `json:"images"`
	Variants          []string `json:"variants"`
	Status            string   `json:"status"`
	IsPreorder        *bool    `json:"is_preorder"`
	OrderDeadline     string   `json:"order_deadline"` // RFC3339 或 2006-01-02
	EstimatedDelivery string   `json:"estimated_delivery"`
}

// ImportProductsRequest 表格推送的商品导入请求
type ImportProductsRequest struct {
	DeliveryID string            `json:"delivery_id"`
	Secret     string            `json:"secret"`
	Rows       []SheetProductRow `json:"rows"`
}

// ImportProductsResult 导入结果
type ImportProductsResult struct {
	Duplicate      bool     `json:"duplicate"`
	Upserted       int      `json:"upserted"`
	ImagesMigrated int      `json:"images_migrated"`
	Errors         []string `json:"errors"`
}

// SheetOrderRow 推送到表格的订单行
type SheetOrderRow struct {
	OrderNumber   string `json:"order_number"`
	CreatedAt     string `json:"created_at"`
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Province      string `json:"province"`
	Items         string `json:"items"`
	Subtotal      int64  `json:"subtotal"`
	ShippingFee   int64  `json:"shipping_fee"`
	Total         int64  `json:"total"`
	PaymentMethod string `json:"payment_method"`
	Status        string `json:"status"`
	RefCode       string `json:"ref_code"`
	Note          string `json:"note"`
}

// SheetPushPayload 表格 webhook 请求体
type SheetPushPayload struct {
	Secret string          `json:"secret"`
	Action string          `json:"action"`
	Rows   []SheetOrderRow `json:"rows"`
}

// ImageSyncRequest 图片同步请求，空表示全部
type ImageSyncRequest struct {
	ProductIDs []int64 `json:"product_ids"`
}

// ImageSyncResult 图片同步结果
type ImageSyncResult struct {
	ProductsProcessed int      `json:"products_processed"`
	ImagesMigrated    int      `json:"images_migrated"`
	ImagesSkipped     int      `json:"images_skipped"`
	Errors            []string `json:"errors"`
}
