package domain

import (
	"fmt"
	"regexp"
	"strings"
)

type PaymentMethodKind string

const (
	MethodCard         PaymentMethodKind = "card"
	MethodPayPal       PaymentMethodKind = "paypal"
	MethodBankTransfer PaymentMethodKind = "bank_transfer"
	MethodMTNMoMo      PaymentMethodKind = "mtn_momo"
	MethodOrangeMoMo   PaymentMethodKind = "orange_momo"
)

// PaymentMethod is one of Card, PayPal, BankTransfer or MobileMoney.
type PaymentMethod interface {
	Kind() PaymentMethodKind
	Validate() error
}

type Card struct {
	Brand string
	Last4 string
}

type PayPal struct {
	Email string
}

type BankTransfer struct {
	BankName   string
	AccountRef string
}

type MobileMoneyProvider string

const (
	ProviderMTN    MobileMoneyProvider = "mtn"
	ProviderOrange MobileMoneyProvider = "orange"
)

type MobileMoney struct {
	Provider    MobileMoneyProvider
	PhoneNumber string
	AccountName string
}

var (
	last4Pattern = regexp.MustCompile(`^[0-9]{4}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

func (Card) Kind() PaymentMethodKind { return MethodCard }

func (c Card) Validate() error {
	if !last4Pattern.MatchString(c.Last4) {
		return fmt.Errorf("%w: card last4 must be 4 digits", ErrInvalidInput)
	}
	return nil
}

func (PayPal) Kind() PaymentMethodKind { return MethodPayPal }

func (p PayPal) Validate() error {
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: paypal email required", ErrInvalidInput)
	}
	return nil
}

func (BankTransfer) Kind() PaymentMethodKind { return MethodBankTransfer }

func (b BankTransfer) Validate() error {
	if strings.TrimSpace(b.AccountRef) == "" {
		return fmt.Errorf("%w: bank transfer account reference required", ErrInvalidInput)
	}
	return nil
}

func (m MobileMoney) Kind() PaymentMethodKind {
	if m.Provider == ProviderOrange {
		return MethodOrangeMoMo
	}
	return MethodMTNMoMo
}

func (m MobileMoney) Validate() error {
	if m.Provider != ProviderMTN && m.Provider != ProviderOrange {
		return fmt.Errorf("%w: unknown mobile money provider %q", ErrInvalidInput, m.Provider)
	}
	if !phonePattern.MatchString(m.PhoneNumber) {
		return fmt.Errorf("%w: mobile money phone number is malformed", ErrInvalidInput)
	}
	return nil
}

// MethodRecord is the tagged wire/storage form of a PaymentMethod.
type MethodRecord struct {
	Type        PaymentMethodKind `json:"type" enum:"card,paypal,bank_transfer,mtn_momo,orange_momo"`
	Brand       string            `json:"brand,omitempty"`
	Last4       string            `json:"last4,omitempty"`
	Email       string            `json:"email,omitempty"`
	BankName    string            `json:"bank_name,omitempty"`
	AccountRef  string            `json:"account_ref,omitempty"`
	PhoneNumber string            `json:"phone_number,omitempty"`
	AccountName string            `json:"account_name,omitempty"`
}

// RecordOf flattens a PaymentMethod into its tagged form.
func RecordOf(pm PaymentMethod) MethodRecord {
	switch m := pm.(type) {
	case Card:
		return MethodRecord{Type: MethodCard, Brand: m.Brand, Last4: m.Last4}
	case PayPal:
		return MethodRecord{Type: MethodPayPal, Email: m.Email}
	case BankTransfer:
		return MethodRecord{Type: MethodBankTransfer, BankName: m.BankName, AccountRef: m.AccountRef}
	case MobileMoney:
		return MethodRecord{Type: m.Kind(), PhoneNumber: m.PhoneNumber, AccountName: m.AccountName}
	default:
		return MethodRecord{}
	}
}

// Method decodes the record into its variant, validating variant fields.
func (r MethodRecord) Method() (PaymentMethod, error) {
	var pm PaymentMethod
	switch r.Type {
	case MethodCard:
		pm = Card{Brand: r.Brand, Last4: r.Last4}
	case MethodPayPal:
		pm = PayPal{Email: r.Email}
	case MethodBankTransfer:
		pm = BankTransfer{BankName: r.BankName, AccountRef: r.AccountRef}
	case MethodMTNMoMo:
		pm = MobileMoney{Provider: ProviderMTN, PhoneNumber: r.PhoneNumber, AccountName: r.AccountName}
	case MethodOrangeMoMo:
		pm = MobileMoney{Provider: ProviderOrange, PhoneNumber: r.PhoneNumber, AccountName: r.AccountName}
	default:
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, r.Type)
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}
	return pm, nil
}
