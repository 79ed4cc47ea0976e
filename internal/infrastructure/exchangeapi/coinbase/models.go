package coinbase

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// currencyField accepts both the string form of older API versions and the
// object form {"code": "BTC", ...}.
type currencyField string

func (c *currencyField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = currencyField(s)
		return nil
	}
	var obj struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*c = currencyField(obj.Code)
	return nil
}

type apiAccount struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Primary       bool          `json:"primary"`
	Type          string        `json:"type"`
	Currency      currencyField `json:"currency"`
	Balance       money         `json:"balance"`
	NativeBalance *money        `json:"native_balance"`
}

func (a apiAccount) currencyCode() string {
	if a.Balance.Currency != "" {
		return a.Balance.Currency
	}
	return string(a.Currency)
}

type apiTransaction struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Amount       money     `json:"amount"`
	NativeAmount *money    `json:"native_amount"`
	Description  *string   `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	ResourcePath string    `json:"resource_path"`
	Details      struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	} `json:"details"`
}

// accountID extracts the account from /v2/accounts/{account}/transactions/{id}.
func (t apiTransaction) accountID() string {
	parts := strings.Split(strings.Trim(t.ResourcePath, "/"), "/")
	if len(parts) >= 3 && parts[1] == "accounts" {
		return parts[2]
	}
	return ""
}

func (t apiTransaction) name() string {
	switch {
	case t.Details.Title != "":
		return t.Details.Title
	case t.Description != nil && *t.Description != "":
		return *t.Description
	default:
		return t.Type
	}
}
