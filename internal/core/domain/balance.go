package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is a currency code drawn from a CurrencySet.
type Currency string

// Default currencies offered by the exchange.
const (
	CurrencyUSD  Currency = "USD"
	CurrencyBTC  Currency = "BTC"
	CurrencyETH  Currency = "ETH"
	CurrencyUSDT Currency = "USDT"
	CurrencyBNB  Currency = "BNB"
)

// DefaultCurrencies is the currency set used when none is configured.
var DefaultCurrencies = []Currency{CurrencyUSD, CurrencyBTC, CurrencyETH, CurrencyUSDT, CurrencyBNB}

// Stored amounts are NUMERIC(38,18).
const (
	MaxAmountScale         = 18
	MaxAmountIntegerDigits = 38 - MaxAmountScale

	maxAmountInputLength = 64
)

var (
	ErrEmptyCurrencySet = errors.New("currency set must not be empty")
	ErrAmountFormat     = errors.New("amount is not a decimal number")
	ErrAmountScale      = fmt.Errorf("amount has more than %d fractional digits", MaxAmountScale)
	ErrAmountRange      = fmt.Errorf("amount has more than %d integer digits", MaxAmountIntegerDigits)
)

// Currency codes are 2 to 10 letters, matching the balances.currency column.
var currencyCodeRe = regexp.MustCompile(`^[A-Za-z]{2,10}$`)

// ValidCurrencyCode reports whether code has the shape of a currency code,
// ignoring surrounding whitespace. Membership is decided by a CurrencySet.
func ValidCurrencyCode(code string) bool {
	return currencyCodeRe.MatchString(strings.TrimSpace(code))
}

// CurrencySet is a closed, ordered set of supported currencies.
// It is immutable after construction and safe for concurrent use.
type CurrencySet struct {
	ordered []Currency
	index   map[Currency]struct{}
}

// NewCurrencySet builds a set from codes, upper-casing and rejecting
// duplicates and blanks.
func NewCurrencySet(codes ...string) (*CurrencySet, error) {
	if len(codes) == 0 {
		return nil, ErrEmptyCurrencySet
	}

	s := &CurrencySet{
		ordered: make([]Currency, 0, len(codes)),
		index:   make(map[Currency]struct{}, len(codes)),
	}
	for _, code := range codes {
		c := Currency(strings.ToUpper(strings.TrimSpace(code)))
		if c == "" {
			return nil, errors.New("currency code must not be blank")
		}
		if !ValidCurrencyCode(string(c)) {
			return nil, fmt.Errorf("invalid currency code %q", c)
		}
		if _, dup := s.index[c]; dup {
			return nil, fmt.Errorf("duplicate currency %s", c)
		}
		s.index[c] = struct{}{}
		s.ordered = append(s.ordered, c)
	}
	return s, nil
}

// MustCurrencySet is NewCurrencySet that panics on error. Intended for tests
// and package-level defaults.
func MustCurrencySet(codes ...string) *CurrencySet {
	s, err := NewCurrencySet(codes...)
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultCurrencySet returns a set of DefaultCurrencies.
func DefaultCurrencySet() *CurrencySet {
	codes := make([]string, len(DefaultCurrencies))
	for i, c := range DefaultCurrencies {
		codes[i] = string(c)
	}
	return MustCurrencySet(codes...)
}

// Parse resolves a case-insensitive code to a member of the set.
func (s *CurrencySet) Parse(code string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	_, ok := s.index[c]
	return c, ok
}

// Contains reports whether c is a member of the set.
func (s *CurrencySet) Contains(c Currency) bool {
	_, ok := s.index[c]
	return ok
}

// All returns the members in configuration order. The slice is a copy.
func (s *CurrencySet) All() []Currency {
	out := make([]Currency, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len returns the number of currencies in the set.
func (s *CurrencySet) Len() int {
	return len(s.ordered)
}

// BalanceRecord is the balance of one owner in one currency.
// There is exactly one record per (OwnerID, Currency).
type BalanceRecord struct {
	OwnerID   uuid.UUID       `json:"owner_id"`
	Currency  Currency        `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceKey identifies a single balance record.
type BalanceKey struct {
	OwnerID  uuid.UUID
	Currency Currency
}

// Key returns the record's identifying key.
func (b *BalanceRecord) Key() BalanceKey {
	return BalanceKey{OwnerID: b.OwnerID, Currency: b.Currency}
}

// ZeroBalance returns an unpersisted zero record for the pair.
func ZeroBalance(ownerID uuid.UUID, currency Currency) BalanceRecord {
	return BalanceRecord{OwnerID: ownerID, Currency: currency, Amount: decimal.Zero}
}

// ParseAmount parses a decimal string without going through binary floating
// point and rejects values a stored balance cannot hold. It does not check
// the sign; callers decide whether zero is allowed.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAmountInputLength {
		return decimal.Zero, ErrAmountFormat
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrAmountFormat
	}
	if !ValidAmountScale(d) {
		return decimal.Zero, ErrAmountScale
	}
	if !ValidAmountRange(d) {
		return decimal.Zero, ErrAmountRange
	}
	return d, nil
}

// ValidAmountScale reports whether d fits the stored scale.
func ValidAmountScale(d decimal.Decimal) bool {
	return -d.Exponent() <= MaxAmountScale
}

// ValidAmountRange reports whether the integer part of d fits the stored
// precision. It inspects digits and exponent only, so huge exponents are
// never expanded.
func ValidAmountRange(d decimal.Decimal) bool {
	return d.NumDigits()+int(d.Exponent()) <= MaxAmountIntegerDigits
}

// ValidAmount reports whether d can be stored as a balance.
func ValidAmount(d decimal.Decimal) bool {
	return ValidAmountScale(d) && ValidAmountRange(d)
}
