package wire

import "encoding/json"

// Screen names what the customer display should be showing.
type Screen string

const (
	ScreenIdle                     Screen = "IDLE"
	ScreenSalePreview              Screen = "SALE_PREVIEW"
	ScreenSaleProcessing           Screen = "SALE_PROCESSING"
	ScreenCustomerSelected         Screen = "CUSTOMER_SELECTED"
	ScreenGiftCertificateIssued    Screen = "GIFT_CERTIFICATE_ISSUED"
	ScreenGiftCertificateValidated Screen = "GIFT_CERTIFICATE_VALIDATED"
)

// WelcomePayload is sent once to every new surface after it settles.
type WelcomePayload struct {
	// DisplayName is the organization name shown on the idle screen.
	DisplayName string `json:"displayName"`
	// Screen is the last known operator screen, if any.
	Screen Screen `json:"screen,omitempty"`
	// Transaction is the initial transaction. Empty on a fresh display.
	Transaction json.RawMessage `json:"transaction,omitempty"`
}

// StateUpdatePayload carries the current transaction state.
type StateUpdatePayload struct {
	Screen Screen          `json:"screen"`
	Data   json.RawMessage `json:"data,omitempty"`
}
