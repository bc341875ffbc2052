// Package txid encodes the purchase context into the transaction identifier
// sent to the payment gateway and decodes it back from webhook deliveries.
//
// Current form:  TX-<type>-s<subscriptionID>-<LANG>-<unixMillis>
// Legacy forms:  TX-s<subscriptionID>-<lang>-<unixMillis>, TX-s<subscriptionID>-<unixMillis>
//
// Fields are positional, so no field may contain the delimiter.
package txid

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
)

const (
	Delimiter = "-"
	prefix    = "TX"
	subMarker = "s"
	// NoSubscription stands in for the subscription id of purchases that do not need one.
	NoSubscription = "0"
)

// Context is the purchase context carried by a transaction identifier.
type Context struct {
	Type           model.TransactionType
	SubscriptionID string
	Language       model.Language
	Timestamp      time.Time
}

// Encode builds a transaction identifier. The language is normalized here so
// the recorded identifier is self-consistent.
func Encode(typ model.TransactionType, subscriptionID string, lang string, at time.Time) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("%w: transaction type %q", domain.ErrInvalidArgument, typ)
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if typ != model.TransactionSubscription {
		subscriptionID = NoSubscription
	} else if subscriptionID == "" || subscriptionID == NoSubscription {
		return "", fmt.Errorf("%w: subscription id required", domain.ErrInvalidArgument)
	}
	if strings.Contains(subscriptionID, Delimiter) {
		return "", fmt.Errorf("%w: subscription id %q contains %q", domain.ErrInvalidArgument, subscriptionID, Delimiter)
	}
	return strings.Join([]string{
		prefix,
		string(typ),
		subMarker + subscriptionID,
		string(model.NormalizeLanguage(lang)),
		strconv.FormatInt(at.UnixMilli(), 10),
	}, Delimiter), nil
}

// Decode parses any supported identifier form. Every failure wraps
// domain.ErrMalformedIdentifier.
func Decode(s string) (Context, error) {
	parts := strings.Split(strings.TrimSpace(s), Delimiter)
	if len(parts) < 3 || parts[0] != prefix {
		return Context{}, malformed(s, "unexpected shape")
	}

	typ := model.TransactionType(parts[1])
	var sub, lang, ts string
	switch {
	case typ.Valid() && len(parts) == 5:
		sub, lang, ts = parts[2], parts[3], parts[4]
	case typ.Valid() && len(parts) == 4:
		sub, ts = parts[2], parts[3]
	case !typ.Valid() && len(parts) == 4:
		typ = model.TransactionSubscription
		sub, lang, ts = parts[1], parts[2], parts[3]
	case !typ.Valid() && len(parts) == 3:
		typ = model.TransactionSubscription
		sub, ts = parts[1], parts[2]
	default:
		return Context{}, malformed(s, fmt.Sprintf("%d fields", len(parts)))
	}

	if !strings.HasPrefix(sub, subMarker) || len(sub) == len(subMarker) {
		return Context{}, malformed(s, "missing subscription segment")
	}
	sub = strings.TrimPrefix(sub, subMarker)
	if typ == model.TransactionSubscription && sub == NoSubscription {
		return Context{}, malformed(s, "subscription purchase without subscription id")
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms < 0 {
		return Context{}, malformed(s, "timestamp not numeric")
	}

	language := model.LanguageEN
	if lang != "" {
		language = model.NormalizeLanguage(lang)
	}
	return Context{
		Type:           typ,
		SubscriptionID: sub,
		Language:       language,
		Timestamp:      time.UnixMilli(ms),
	}, nil
}

func malformed(s, reason string) error {
	return fmt.Errorf("%w: %q: %s", domain.ErrMalformedIdentifier, s, reason)
}
