// Package correlation encodes the opaque token handed to the payment
// provider as a custom id. The provider echoes the token back in webhook
// payloads, and decoding it is the only way to reconstruct the local
// subscription reference without a provider-side lookup.
package correlation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
)

// Kind tags the flow a token was minted for.
type Kind string

const (
	// KindSubscription marks a subscription purchase.
	KindSubscription Kind = "sub"
	// KindPlanUpgrade marks a plan upgrade checkout.
	KindPlanUpgrade Kind = "planup"
)

const separator = ":"

// Encode mints a token embedding a fresh subscription identifier and the
// kind tag.
func Encode(kind Kind) (string, uuid.UUID) {
	id := uuid.New()
	return string(kind) + separator + strings.ReplaceAll(id.String(), "-", ""), id
}

// Decode splits a token back into its leg kind and subscription id. A
// one-part token is a bare identifier (pure recurring-subscription flow);
// a two-part token is kind:identifier (checkout/order flow). Anything
// else fails with ErrMalformedCorrelationID.
func Decode(token string) (string, uuid.UUID, error) {
	parts := strings.Split(token, separator)

	switch len(parts) {
	case 1:
		id, err := uuid.Parse(parts[0])
		if err != nil {
			return "", uuid.Nil, fmt.Errorf("%w: %q", model.ErrMalformedCorrelationID, token)
		}
		return "", id, nil
	case 2:
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return "", uuid.Nil, fmt.Errorf("%w: %q", model.ErrMalformedCorrelationID, token)
		}
		return parts[0], id, nil
	}

	return "", uuid.Nil, fmt.Errorf("%w: %q", model.ErrMalformedCorrelationID, token)
}
