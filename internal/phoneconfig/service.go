package phoneconfig

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// Repository stores the singleton configuration.
type Repository interface {
	Get(ctx context.Context) (Configuration, error)
	Save(ctx context.Context, c Configuration) (Configuration, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Get returns the stored configuration, or an empty one if none was saved yet.
func (s *Service) Get(ctx context.Context) (Configuration, error) {
	if s.repo == nil {
		return Configuration{}, errors.New("phoneconfig: repository not configured")
	}
	c, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return Configuration{TransferNumbers: []string{}, PhoneBook: []PhoneBookEntry{}}, nil
	}
	return c, err
}

// Update validates and replaces the configuration.
func (s *Service) Update(ctx context.Context, c Configuration) (Configuration, error) {
	if s.repo == nil {
		return Configuration{}, errors.New("phoneconfig: repository not configured")
	}
	c, err := normalize(c)
	if err != nil {
		return Configuration{}, err
	}
	c.UpdatedAt = s.clock().UTC()
	return s.repo.Save(ctx, c)
}

// ResolveTransfer maps a phone book label onto its number. Targets that are
// not labels are returned unchanged. notifyEmail is the configured staff
// address, if any.
func (s *Service) ResolveTransfer(ctx context.Context, target string) (number string, notifyEmail string, err error) {
	target = strings.TrimSpace(target)
	c, err := s.Get(ctx)
	if err != nil {
		return target, "", err
	}
	for _, e := range c.PhoneBook {
		if strings.EqualFold(e.Label, target) {
			return e.Number, c.TransferRequestEmail, nil
		}
	}
	return target, c.TransferRequestEmail, nil
}

func normalize(c Configuration) (Configuration, error) {
	var problems []string

	c.AIPhoneNumber = strings.TrimSpace(c.AIPhoneNumber)
	c.AIPhoneLabel = strings.TrimSpace(c.AIPhoneLabel)
	if c.AIPhoneNumber != "" && !isPhoneNumber(c.AIPhoneNumber) {
		problems = append(problems, "retell_ai_phone_number is not a phone number")
	}

	numbers := make([]string, 0, len(c.TransferNumbers))
	for _, n := range c.TransferNumbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !isPhoneNumber(n) {
			problems = append(problems, fmt.Sprintf("transfer number %q is not a phone number", n))
			continue
		}
		numbers = append(numbers, n)
	}
	c.TransferNumbers = numbers

	book := make([]PhoneBookEntry, 0, len(c.PhoneBook))
	seen := map[string]bool{}
	for _, e := range c.PhoneBook {
		e.Label = strings.TrimSpace(e.Label)
		e.Number = strings.TrimSpace(e.Number)
		if e.Label == "" && e.Number == "" {
			continue
		}
		switch key := strings.ToLower(e.Label); {
		case e.Label == "":
			problems = append(problems, fmt.Sprintf("phone book entry %q needs a label", e.Number))
		case !isPhoneNumber(e.Number):
			problems = append(problems, fmt.Sprintf("phone book entry %q has an invalid number", e.Label))
		case seen[key]:
			problems = append(problems, fmt.Sprintf("phone book label %q is duplicated", e.Label))
		default:
			seen[key] = true
			book = append(book, e)
		}
	}
	c.PhoneBook = book

	c.TransferRequestEmail = strings.TrimSpace(c.TransferRequestEmail)
	if c.TransferRequestEmail != "" {
		addr, err := mail.ParseAddress(c.TransferRequestEmail)
		if err != nil {
			problems = append(problems, "transfer_request_email is not a valid address")
		} else {
			c.TransferRequestEmail = addr.Address
		}
	}

	if len(problems) > 0 {
		return Configuration{}, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return c, nil
}

// isPhoneNumber accepts digits with an optional leading + and common separators.
func isPhoneNumber(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 3 && digits <= 15
}
