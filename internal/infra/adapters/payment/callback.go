package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
)

type callbackData struct {
	TransactionID string `json:"transactionId"`
	InvoiceNumber string `json:"invoiceNumber"`
	PaymentStatus string `json:"paymentStatus"`
}

type legacyCallback struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// ParseCallback decodes a webhook body into a CallbackEvent. A JSON object
// under "data" selects the current shape; otherwise the legacy flat
// {transaction_id, status} shape is expected.
func ParseCallback(body []byte) (model.CallbackEvent, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.CallbackEvent{}, fmt.Errorf("%w: callback body is not a JSON object", domain.ErrInvalidArgument)
	}
	if isDataObject(raw["data"]) {
		var data callbackData
		if err := json.Unmarshal(raw["data"], &data); err != nil {
			return model.CallbackEvent{}, fmt.Errorf("%w: decode callback data: %v", domain.ErrInvalidArgument, err)
		}
		ev := model.CallbackEvent{
			TransactionID: strings.TrimSpace(data.TransactionID),
			InvoiceNumber: strings.TrimSpace(data.InvoiceNumber),
			Status:        NormalizeCallbackStatus(data.PaymentStatus),
		}
		if ev.CorrelationKey() == "" {
			return model.CallbackEvent{}, fmt.Errorf("%w: callback carries no invoice number or transaction id", domain.ErrInvalidArgument)
		}
		return ev, nil
	}

	var cb legacyCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return model.CallbackEvent{}, fmt.Errorf("%w: decode callback: %v", domain.ErrInvalidArgument, err)
	}
	if strings.TrimSpace(cb.TransactionID) == "" {
		return model.CallbackEvent{}, fmt.Errorf("%w: callback carries no transaction id", domain.ErrInvalidArgument)
	}
	return model.CallbackEvent{
		TransactionID: strings.TrimSpace(cb.TransactionID),
		Status:        NormalizeCallbackStatus(cb.Status),
	}, nil
}

func isDataObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}

// NormalizeCallbackStatus maps gateway status strings onto PAID, FAILED or UNKNOWN.
func NormalizeCallbackStatus(s string) model.CallbackStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return model.CallbackUnknown
	case "PAID", "COMPLETED":
		return model.CallbackPaid
	default:
		return model.CallbackFailed
	}
}
