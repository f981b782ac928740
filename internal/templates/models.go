package templates

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Template is the admin-editable subject and body for one email type.
// Invariant: at most one row per TemplateType.
type Template struct {
	TemplateType string    `json:"template_type" db:"template_type"`
	Subject      string    `json:"subject" db:"subject"`
	Body         string    `json:"body" db:"body"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Rendered is a template with its variables substituted.
type Rendered struct {
	TemplateType string
	Subject      string
	Body         string
}

const (
	TypePaymentLink    = "payment_link"
	TypeAdjustmentForm = "adjustment_form"
	TypeGeneralInfo    = "general_info"

	// FallbackType is used for any email type without a built-in default.
	FallbackType = TypeGeneralInfo
)

var (
	ErrNotFound        = errors.New("templates: not found")
	ErrUnknownType     = errors.New("templates: unknown template type")
	ErrInvalidTemplate = errors.New("templates: invalid template")
)

type defaultTemplate struct {
	subject string
	body    string
}

// defaults is read-only after init and only consulted when seeding a missing row.
var defaults = map[string]defaultTemplate{
	TypePaymentLink: {
		subject: "Braselton Water/Sewer - Online Payment Link",
		body: `Hello,

Thank you for contacting the Town of Braselton Water/Sewer Department.

To pay your utility bill online, please visit:
https://braselton.net/pay

Payment options:
- Credit/debit card
- E-check

You can also pay in person at Town Hall (cash, check, or money order).

Hours: Monday-Friday, 8:00 AM - 5:00 PM
Address: 6111 Winder Highway, Braselton, GA 30517

Questions? Call (770) 867-4488

Town of Braselton Water/Sewer
`,
	},
	TypeAdjustmentForm: {
		subject: "Braselton Water/Sewer - Request for Adjustment Form",
		body: `Hello,

Please find the Request for Adjustment form here:
https://braselton.net/utilities/adjustment-form

Complete and return to:
- Email: utilitybilling@braselton.net
- In person: Braselton Town Hall

We'll review your request within 3-5 business days.

Questions? Call (770) 867-4488

Town of Braselton Water/Sewer
`,
	},
	TypeGeneralInfo: {
		subject: "Braselton Water/Sewer - Contact Information",
		body: `Hello,

Thank you for contacting the Town of Braselton Water/Sewer Department.

For more information, please visit our website:
https://braselton.net

Contact Us:
Phone: (770) 867-4488
Email: utilitybilling@braselton.net
Address: 6111 Winder Highway, Braselton, GA 30517

Hours: Monday-Friday, 8:00 AM - 5:00 PM

Town of Braselton Water/Sewer
`,
	},
}

// Default returns the built-in template for templateType.
func Default(templateType string) (Template, bool) {
	d, ok := defaults[templateType]
	if !ok {
		return Template{}, false
	}
	return Template{TemplateType: templateType, Subject: d.subject, Body: d.body}, true
}

// KnownTypes lists every type with a built-in default, sorted.
func KnownTypes() []string {
	out := make([]string, 0, len(defaults))
	for k := range defaults {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CanonicalType maps a requested email type onto a known template key.
func CanonicalType(emailType string) string {
	key := strings.ToLower(strings.TrimSpace(emailType))
	if _, ok := defaults[key]; ok {
		return key
	}
	return FallbackType
}

func IsKnownType(templateType string) bool {
	_, ok := defaults[templateType]
	return ok
}
