package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anjiri1684/mentor_payouts/models"
)

const signOff = "Best regards,\nPayoutSync Team"

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// FormatAmount renders an amount with its currency symbol and thousands
// grouping, e.g. ₹12,345.50.
func FormatAmount(currency string, amount decimal.Decimal) string {
	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}

	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	if frac == "00" {
		return sign + symbol + b.String()
	}
	return sign + symbol + b.String() + "." + frac
}

func formatDate(t time.Time) string {
	return t.Format("02 Jan 2006")
}

// WeeklyPayoutEmail is the confirmation sent after an automated weekly
// payout is transferred.
func WeeklyPayoutEmail(p *models.Payout, to string) Email {
	amount := FormatAmount(p.Currency, p.TotalAmount)
	body := fmt.Sprintf(`Dear %s,

Your weekly payout has been processed and transferred to your bank account.

Period: %s to %s
Amount: %s

The amount should reflect in your account within 1-2 business days.

%s`, p.MentorName, formatDate(p.PeriodStart), formatDate(p.PeriodEnd), amount, signOff)

	return Email{
		To:      to,
		ToName:  p.MentorName,
		Subject: "Weekly Payout Processed - " + amount,
		Body:    body,
	}
}

// ReceiptEmail announces a manually generated receipt with its breakdown.
func ReceiptEmail(p *models.Payout, to string) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", p.MentorName)
	fmt.Fprintf(&b, "A payout receipt has been generated for your sessions.\n\n")
	fmt.Fprintf(&b, "Receipt: %s\n", p.ReceiptNumber)
	fmt.Fprintf(&b, "Period: %s to %s\n", formatDate(p.PeriodStart), formatDate(p.PeriodEnd))
	fmt.Fprintf(&b, "Sessions: %d\n\n", len(p.Sessions))
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatAmount(p.Currency, p.Subtotal))
	fmt.Fprintf(&b, "Platform fee: %s\n", FormatAmount(p.Currency, p.PlatformFee))
	fmt.Fprintf(&b, "GST: %s\n", FormatAmount(p.Currency, p.GST))
	fmt.Fprintf(&b, "Total payout: %s\n", FormatAmount(p.Currency, p.TotalAmount))
	fmt.Fprintf(&b, "Status: %s\n", p.Status)
	if p.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", p.Notes)
	}
	b.WriteString("\n" + signOff)

	return Email{
		To:      to,
		ToName:  p.MentorName,
		Subject: fmt.Sprintf("Payout Receipt %s - %s", p.ReceiptNumber, FormatAmount(p.Currency, p.TotalAmount)),
		Body:    b.String(),
	}
}
