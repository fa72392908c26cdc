package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemotePackage(t *testing.T) {
	payload := []byte(`{
		"orderNumber": "TY-1001",
		"shipmentPackageStatus": "Created",
		"totalPrice": 59.9,
		"orderDate": 1712000000000,
		"customerFirstName": "Ayse",
		"customerLastName": "Yilmaz",
		"lines": [
			{"barcode": "B123", "productName": "Ceramic Vase", "quantity": 2, "price": 29.95}
		]
	}`)

	pkg, err := ParseRemotePackage(payload)
	require.NoError(t, err)

	assert.Equal(t, "TY-1001", pkg.OrderNumber)
	assert.Equal(t, "Created", pkg.Status)
	assert.Equal(t, "59.9", pkg.TotalAmount.String())
	assert.Equal(t, "Ayse Yilmaz", pkg.CustomerName)
	assert.Equal(t, time.UnixMilli(1712000000000), pkg.OrderDate)

	require.Len(t, pkg.Lines, 1)
	assert.Equal(t, "B123", pkg.Lines[0].Barcode)
	assert.Equal(t, "Ceramic Vase", pkg.Lines[0].ProductName)
	assert.Equal(t, 2, pkg.Lines[0].Quantity)
	assert.Equal(t, "29.95", pkg.Lines[0].UnitPrice.String())
}

func TestParseRemotePackageFieldFallbacks(t *testing.T) {
	// Older API versions spell the same fields differently.
	payload := []byte(`{
		"orderId": "TY-2002",
		"status": "Shipped",
		"grossAmount": 100,
		"orderDateStr": "2024-04-01T10:00:00Z",
		"customerName": "Mehmet Demir",
		"items": [
			{"sku": "S-1", "name": "Tea Set", "quantity": 1, "lineUnitPrice": 100, "productId": 4242}
		]
	}`)

	pkg, err := ParseRemotePackage(payload)
	require.NoError(t, err)

	assert.Equal(t, "TY-2002", pkg.OrderNumber)
	assert.Equal(t, "Shipped", pkg.Status)
	assert.Equal(t, "100", pkg.TotalAmount.String())
	assert.Equal(t, "Mehmet Demir", pkg.CustomerName)
	assert.Equal(t, 2024, pkg.OrderDate.Year())

	require.Len(t, pkg.Lines, 1)
	assert.Equal(t, "S-1", pkg.Lines[0].Barcode)
	assert.Equal(t, "Tea Set", pkg.Lines[0].ProductName)
	assert.Equal(t, "4242", pkg.Lines[0].RemoteProductID)
	assert.Equal(t, "100", pkg.Lines[0].UnitPrice.String())
}

func TestParseRemotePackageProductIDAsString(t *testing.T) {
	payload := []byte(`{
		"orderNumber": "TY-3003",
		"lines": [{"barcode": "B9", "quantity": 1, "productId": "abc-77"}]
	}`)

	pkg, err := ParseRemotePackage(payload)
	require.NoError(t, err)
	assert.Equal(t, "abc-77", pkg.Lines[0].RemoteProductID)
}

func TestParseRemotePackageDefaultsQuantityToOne(t *testing.T) {
	payload := []byte(`{
		"orderNumber": "TY-4004",
		"lines": [{"barcode": "B1", "price": 5}]
	}`)

	pkg, err := ParseRemotePackage(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, pkg.Lines[0].Quantity)
}

func TestParseRemotePackageRequiresOrderNumber(t *testing.T) {
	_, err := ParseRemotePackage([]byte(`{"status": "Created"}`))
	assert.Error(t, err)
}

func TestParseRemotePackageRejectsMalformedJSON(t *testing.T) {
	_, err := ParseRemotePackage([]byte(`{not json`))
	assert.Error(t, err)
}
