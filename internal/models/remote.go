package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Webhook event types the engine understands.
const (
	EventOrderCreated       = "order.created"
	EventOrderNew           = "order.new"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventStockUpdated       = "stock.updated"
)

// WebhookEnvelope is the body of every inbound webhook call.
type WebhookEnvelope struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// RemotePackage is the canonical, normalized shape of a marketplace
// order/shipment package. Both ingestion paths work on this type only;
// field-name drift across marketplace API versions is resolved in
// ParseRemotePackage and never leaks into business logic.
type RemotePackage struct {
	OrderNumber     string
	Status          string
	TotalAmount     decimal.Decimal
	OrderDate       time.Time
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Lines           []RemoteLine
}

// RemoteLine is one normalized line item of a remote package.
type RemoteLine struct {
	Barcode         string
	RemoteProductID string
	ProductName     string
	Quantity        int
	UnitPrice       decimal.Decimal
}

// rawPackage and rawLine list every field spelling observed across
// marketplace API versions. The fallback order applied below is the
// single place where the variants are reconciled.
type rawPackage struct {
	OrderNumber           string    `json:"orderNumber"`
	OrderID               string    `json:"orderId"`
	ShipmentPackageStatus string    `json:"shipmentPackageStatus"`
	Status                string    `json:"status"`
	TotalPrice            *float64  `json:"totalPrice"`
	GrossAmount           *float64  `json:"grossAmount"`
	OrderDate             int64     `json:"orderDate"` // epoch millis
	OrderDateStr          string    `json:"orderDateStr"`
	CustomerFirstName     string    `json:"customerFirstName"`
	CustomerLastName      string    `json:"customerLastName"`
	CustomerName          string    `json:"customerName"`
	CustomerEmail         string    `json:"customerEmail"`
	Email                 string    `json:"email"`
	Address               string    `json:"address"`
	ShipmentAddress       string    `json:"shipmentAddress"`
	Lines                 []rawLine `json:"lines"`
	Items                 []rawLine `json:"items"`
}

type rawLine struct {
	Barcode       string     `json:"barcode"`
	SKU           string     `json:"sku"`
	MerchantSKU   string     `json:"merchantSku"`
	ProductID     flexString `json:"productId"`
	ProductName   string     `json:"productName"`
	Name          string     `json:"name"`
	Quantity      int        `json:"quantity"`
	Amount        *float64   `json:"amount"`
	Price         *float64   `json:"price"`
	LineUnitPrice *float64   `json:"lineUnitPrice"`
}

// flexString accepts both JSON strings and numbers; some marketplace API
// versions send product ids as numbers, others as strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ParseRemotePackage normalizes a marketplace order/package payload.
func ParseRemotePackage(data []byte) (*RemotePackage, error) {
	var raw rawPackage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse package payload: %w", err)
	}

	orderNumber := firstString(raw.OrderNumber, raw.OrderID)
	if orderNumber == "" {
		return nil, fmt.Errorf("package payload has no order number")
	}

	pkg := &RemotePackage{
		OrderNumber:     orderNumber,
		Status:          firstString(raw.ShipmentPackageStatus, raw.Status),
		TotalAmount:     firstAmount(raw.TotalPrice, raw.GrossAmount),
		OrderDate:       parseOrderDate(raw.OrderDate, raw.OrderDateStr),
		CustomerName:    firstString(raw.CustomerName, joinName(raw.CustomerFirstName, raw.CustomerLastName)),
		CustomerEmail:   firstString(raw.CustomerEmail, raw.Email),
		ShippingAddress: firstString(raw.ShipmentAddress, raw.Address),
	}

	rawLines := raw.Lines
	if len(rawLines) == 0 {
		rawLines = raw.Items
	}
	for _, rl := range rawLines {
		line := RemoteLine{
			Barcode:         firstString(rl.Barcode, rl.SKU, rl.MerchantSKU),
			RemoteProductID: string(rl.ProductID),
			ProductName:     firstString(rl.ProductName, rl.Name),
			Quantity:        rl.Quantity,
			UnitPrice:       firstAmount(rl.Price, rl.LineUnitPrice, rl.Amount),
		}
		if line.Quantity <= 0 {
			line.Quantity = 1
		}
		pkg.Lines = append(pkg.Lines, line)
	}

	return pkg, nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstAmount(vals ...*float64) decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return decimal.NewFromFloat(*v)
		}
	}
	return decimal.Zero
}

func joinName(first, last string) string {
	if first == "" {
		return last
	}
	if last == "" {
		return first
	}
	return first + " " + last
}

func parseOrderDate(millis int64, str string) time.Time {
	if millis > 0 {
		return time.UnixMilli(millis)
	}
	if str != "" {
		if t, err := time.Parse(time.RFC3339, str); err == nil {
			return t
		}
	}
	return time.Now()
}
