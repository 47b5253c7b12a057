package service

import (
	"testing"

	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(price string, qty int32) models.OrderLine {
	return models.OrderLine{UnitPrice: dec(price), Quantity: qty}
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: want %s got %s", msg, want, got)
}

func TestBreakdownAndLineCancellationRefund(t *testing.T) {
	coupon := &models.Coupon{DiscountType: models.DiscountFixed, Value: dec("50"), MinPurchase: dec("150")}
	rate, fee := dec("0.05"), dec("20")

	full := ComputeBreakdown([]models.OrderLine{line("100", 1), line("50", 2)}, coupon, rate, fee, decimal.Zero)
	assertDec(t, "200.00", full.Subtotal, "subtotal")
	assertDec(t, "50.00", full.Discount, "discount")
	assertDec(t, "7.50", full.Tax, "tax")
	assertDec(t, "177.50", full.Final, "final")

	after := ComputeBreakdown([]models.OrderLine{line("50", 2)}, coupon, rate, fee, decimal.Zero)
	assertDec(t, "100.00", after.Subtotal, "subtotal after")
	assertDec(t, "0", after.Discount, "discount after")
	assertDec(t, "5.00", after.Tax, "tax after")
	assertDec(t, "125.00", after.Final, "final after")

	assertDec(t, "52.50", RefundDelta(full.Final, after.Final, dec("177.50")), "refund")
}

func TestCouponDiscount(t *testing.T) {
	maxD := dec("30")
	tests := []struct {
		name     string
		coupon   *models.Coupon
		subtotal string
		want     string
	}{
		{"nil coupon", nil, "100", "0"},
		{"below minimum", &models.Coupon{DiscountType: models.DiscountFixed, Value: dec("10"), MinPurchase: dec("150")}, "149.99", "0"},
		{"fixed", &models.Coupon{DiscountType: models.DiscountFixed, Value: dec("10")}, "100", "10"},
		{"fixed capped at subtotal", &models.Coupon{DiscountType: models.DiscountFixed, Value: dec("80")}, "60", "60"},
		{"percentage", &models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("10")}, "123.45", "12.35"},
		{"percentage capped", &models.Coupon{DiscountType: models.DiscountPercentage, Value: dec("50"), MaxDiscount: &maxD}, "100", "30"},
		{"unknown type", &models.Coupon{DiscountType: "BOGO", Value: dec("10")}, "100", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDec(t, tt.want, CouponDiscount(tt.coupon, dec(tt.subtotal)), tt.name)
		})
	}
}

func TestRefundDelta(t *testing.T) {
	assertDec(t, "10", RefundDelta(dec("110"), dec("100"), dec("500")), "plain")
	assertDec(t, "0", RefundDelta(dec("100"), dec("110"), dec("500")), "total went up")
	assertDec(t, "4", RefundDelta(dec("110"), dec("100"), dec("4")), "clamped to refundable")
	assertDec(t, "0", RefundDelta(dec("110"), dec("100"), dec("-1")), "nothing refundable")
}

func TestToMinor(t *testing.T) {
	assert.EqualValues(t, 5250, toMinor(dec("52.50")))
	assert.EqualValues(t, 1, toMinor(dec("0.005")))
	assert.EqualValues(t, 17750, toMinor(dec("177.5")))
}
