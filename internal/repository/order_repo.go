package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"souq-crypto-pay/internal/apperr"
	"souq-crypto-pay/internal/model"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 创建订单
func (r *OrderRepository) Create(order *model.Order) error {
	if err := r.db.Create(order).Error; err != nil {
		return apperr.NewPersistence("create_order", err)
	}
	return nil
}

// FindByID 根据订单 ID 查找订单
func (r *OrderRepository) FindByID(orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrOrderNotFound
		}
		return nil, apperr.NewPersistence("find_order", err)
	}
	return &order, nil
}

// SetTxHash 记录用户提交的交易哈希，仅对待支付订单生效
func (r *OrderRepository) SetTxHash(orderID, txHash string) error {
	result := r.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Update("tx_hash", txHash)
	if result.Error != nil {
		return apperr.NewPersistence("set_tx_hash", result.Error)
	}
	return nil
}

// UpdateStatusIfPending 条件更新状态：仅当订单仍为待支付时写入，
// 终态订单不会被覆盖。返回是否真正发生了写入。
func (r *OrderRepository) UpdateStatusIfPending(orderID, status, failReason string) (bool, error) {
	result := r.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(map[string]interface{}{"status": status, "fail_reason": failReason})
	if result.Error != nil {
		return false, apperr.NewPersistence("update_status", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListPending 列出待核验订单：已提交交易哈希、创建时间在扫描窗口内，
// 按创建时间升序（先到先核验）
func (r *OrderRepository) ListPending(window time.Duration) ([]model.Order, error) {
	var orders []model.Order
	since := time.Now().Add(-window)
	err := r.db.Where("status = ? AND tx_hash <> '' AND created_at > ?", model.OrderStatusPending, since).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, apperr.NewPersistence("list_pending", err)
	}
	return orders, nil
}

// OrderFilter 订单查询过滤条件
type OrderFilter struct {
	Crypto        string
	Status        string
	CustomerEmail string
	TxHash        string
	Page          int
	PageSize      int
}

// ListOrders 分页查询订单列表，支持多字段搜索
func (r *OrderRepository) ListOrders(filter OrderFilter) ([]model.Order, int64, error) {
	query := r.db.Model(&model.Order{})

	// 币种精确匹配
	if filter.Crypto != "" {
		query = query.Where("crypto = ?", filter.Crypto)
	}
	// 状态精确匹配
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	// 客户邮箱精确匹配
	if filter.CustomerEmail != "" {
		query = query.Where("customer_email = ?", filter.CustomerEmail)
	}
	// 交易哈希精确匹配
	if filter.TxHash != "" {
		query = query.Where("tx_hash = ?", filter.TxHash)
	}

	// 查询总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.NewPersistence("count_orders", err)
	}

	// 分页参数默认值
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	offset := (filter.Page - 1) * filter.PageSize

	var orders []model.Order
	if err := query.Order("created_at DESC").Offset(offset).Limit(filter.PageSize).Find(&orders).Error; err != nil {
		return nil, 0, apperr.NewPersistence("list_orders", err)
	}

	return orders, total, nil
}
