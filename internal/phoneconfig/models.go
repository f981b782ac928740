package phoneconfig

import (
	"errors"
	"time"
)

// Configuration holds the phone numbers used by the AI line and the transfer
// flow. Exactly one configuration exists.
type Configuration struct {
	AIPhoneNumber string `json:"retell_ai_phone_number"`
	AIPhoneLabel  string `json:"retell_ai_phone_label"`

	TransferNumbers []string         `json:"transfer_phone_numbers"`
	PhoneBook       []PhoneBookEntry `json:"transfer_phone_book"`

	// TransferRequestEmail receives a staff notification for every transfer.
	TransferRequestEmail string `json:"transfer_request_email"`

	UpdatedAt time.Time `json:"updated_at"`
}

type PhoneBookEntry struct {
	Label  string `json:"label"`
	Number string `json:"number"`
}

var (
	ErrNotFound = errors.New("phoneconfig: not found")
	ErrInvalid  = errors.New("phoneconfig: invalid configuration")
)
