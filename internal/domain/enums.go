package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Store string

const (
	StoreBoutique Store = "boutique"
	StoreOnline   Store = "online"
)

var Stores = []Store{StoreBoutique, StoreOnline}

func ParseStore(raw string) (Store, error) {
	switch Store(strings.ToLower(strings.TrimSpace(raw))) {
	case StoreBoutique:
		return StoreBoutique, nil
	case StoreOnline:
		return StoreOnline, nil
	default:
		return "", NewValidationError("store", fmt.Sprintf("unknown store %q", raw))
	}
}

func (s Store) Valid() bool {
	return s == StoreBoutique || s == StoreOnline
}

type PaymentMethod string

const (
	PaymentCash           PaymentMethod = "cash"
	PaymentCard           PaymentMethod = "card"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// PaymentMethodsFor lists the methods a channel accepts. The boutique takes
// cash or card at the till; the online store takes bank transfer or COD.
func PaymentMethodsFor(store Store) []PaymentMethod {
	switch store {
	case StoreBoutique:
		return []PaymentMethod{PaymentCash, PaymentCard}
	case StoreOnline:
		return []PaymentMethod{PaymentBankTransfer, PaymentCashOnDelivery}
	default:
		return nil
	}
}

func (m PaymentMethod) AllowedFor(store Store) bool {
	for _, allowed := range PaymentMethodsFor(store) {
		if m == allowed {
			return true
		}
	}
	return false
}

// Taxable reports whether the method carries sales tax. Only card payments do.
func (m PaymentMethod) Taxable() bool {
	return m == PaymentCard
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInDelivery OrderStatus = "in_delivery"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch status := OrderStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case OrderPending, OrderInDelivery, OrderDelivered, OrderCancelled:
		return status, nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown order status %q", raw))
	}
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CanTransitionTo encodes the order lifecycle:
// pending -> in_delivery -> delivered, with cancellation allowed from either
// non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderInDelivery || next == OrderCancelled
	case OrderInDelivery:
		return next == OrderDelivered || next == OrderCancelled
	default:
		return false
	}
}

type ReturnType string

const (
	ReturnRefund        ReturnType = "refund"
	ReturnExchangeColor ReturnType = "exchange_color"
	ReturnExchangeSize  ReturnType = "exchange_size"
	ReturnExchangeModel ReturnType = "exchange_model"
)

func ParseReturnType(raw string) (ReturnType, error) {
	switch rt := ReturnType(strings.ToLower(strings.TrimSpace(raw))); rt {
	case ReturnRefund, ReturnExchangeColor, ReturnExchangeSize, ReturnExchangeModel:
		return rt, nil
	default:
		return "", NewValidationError("return_type", fmt.Sprintf("unknown return type %q", raw))
	}
}

func (t ReturnType) IsExchange() bool {
	switch t {
	case ReturnExchangeColor, ReturnExchangeSize, ReturnExchangeModel:
		return true
	default:
		return false
	}
}

type MovementReason string

const (
	MovementSale       MovementReason = "sale"
	MovementOrder      MovementReason = "order"
	MovementCancel     MovementReason = "order_cancel"
	MovementReturn     MovementReason = "return"
	MovementExchange   MovementReason = "exchange"
	MovementSet        MovementReason = "set"
	MovementAdjustment MovementReason = "adjustment"
)

var DefaultSizes = []string{"38", "40", "42", "44", "46", "48", "50", "52"}

// SizeCatalog is the closed set of sizes a deployment sells.
type SizeCatalog struct {
	ordered []string
	set     map[string]struct{}
}

func NewSizeCatalog(sizes []string) SizeCatalog {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	catalog := SizeCatalog{set: make(map[string]struct{}, len(sizes))}
	for _, raw := range sizes {
		size := NormalizeSize(raw)
		if size == "" {
			continue
		}
		if _, dup := catalog.set[size]; dup {
			continue
		}
		catalog.set[size] = struct{}{}
		catalog.ordered = append(catalog.ordered, size)
	}
	return catalog
}

func (c SizeCatalog) Sizes() []string {
	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Validate normalizes raw and rejects sizes outside the catalog.
func (c SizeCatalog) Validate(field string, raw string) (string, error) {
	size := NormalizeSize(raw)
	if size == "" {
		return "", NewValidationError(field, "size is required")
	}
	if _, ok := c.set[size]; !ok {
		return "", NewValidationError(field, fmt.Sprintf("size %q is not one of %s", raw, strings.Join(c.ordered, ", ")))
	}
	return size, nil
}

// NormalizeSize trims whitespace, upper-cases letter sizes and renders numeric
// sizes canonically so "40", "40.0" and " 40 " share one ledger row.
func NormalizeSize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if d, err := decimal.NewFromString(trimmed); err == nil {
		return d.String()
	}
	return strings.ToUpper(trimmed)
}
