package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/engagemarket/backend/internal/models"
)

// ErrNoBracketMatch is returned for follower counts no bracket covers.
var ErrNoBracketMatch = errors.New("no pricing bracket matches follower count")

// Rates are the marketplace commission on withdrawals and the VAT rate.
type Rates struct {
	Commission decimal.Decimal
	VAT        decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		Commission: decimal.RequireFromString("0.15"),
		VAT:        decimal.RequireFromString("0.20"),
	}
}

// Engine suggests prices and splits money movements into their taxed parts.
type Engine struct {
	brackets []Bracket
	rates    Rates
}

// NewEngine validates the bracket table and returns an engine using it.
func NewEngine(brackets []Bracket, rates Rates) (*Engine, error) {
	if err := ValidateBrackets(brackets); err != nil {
		return nil, err
	}
	return &Engine{brackets: brackets, rates: rates}, nil
}

// Suggestion holds the suggested price of each service, in euros.
type Suggestion struct {
	Like        decimal.Decimal `json:"like"`
	Comment     decimal.Decimal `json:"comment"`
	RepostStory decimal.Decimal `json:"repost_story"`
	Follow      decimal.Decimal `json:"follow"`
}

// For returns the suggested price of a single service.
func (s Suggestion) For(svc models.ServiceType) decimal.Decimal {
	switch svc {
	case models.ServiceLike:
		return s.Like
	case models.ServiceComment:
		return s.Comment
	case models.ServiceRepostStory:
		return s.RepostStory
	case models.ServiceFollow:
		return s.Follow
	}
	return decimal.Zero
}

// Bracket returns the bracket covering followers.
func (e *Engine) Bracket(followers int64) (Bracket, error) {
	if followers < 0 {
		return Bracket{}, ErrNoBracketMatch
	}
	for _, b := range e.brackets {
		if b.contains(followers) {
			return b, nil
		}
	}
	return Bracket{}, ErrNoBracketMatch
}

// SuggestPrices returns the midpoint of every service range in the bracket
// matching followers.
func (e *Engine) SuggestPrices(followers int64) (Suggestion, error) {
	b, err := e.Bracket(followers)
	if err != nil {
		return Suggestion{}, err
	}
	return Suggestion{
		Like:        b.Prices[models.ServiceLike].Midpoint(),
		Comment:     b.Prices[models.ServiceComment].Midpoint(),
		RepostStory: b.Prices[models.ServiceRepostStory].Midpoint(),
		Follow:      b.Prices[models.ServiceFollow].Midpoint(),
	}, nil
}

// WithdrawalSplit breaks a gross withdrawal down. VAT is a component of the
// net amount and is informational only: the payout is Net.
type WithdrawalSplit struct {
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
	VAT        decimal.Decimal
	Total      decimal.Decimal
}

func (e *Engine) SplitWithdrawal(gross decimal.Decimal) WithdrawalSplit {
	commission := gross.Mul(e.rates.Commission).Round(2)
	net := gross.Sub(commission)
	return WithdrawalSplit{
		Gross:      gross,
		Commission: commission,
		Net:        net,
		VAT:        net.Mul(e.rates.VAT).Round(2),
		Total:      gross,
	}
}

// TopUpSplit is a top-up amount with VAT added on top.
type TopUpSplit struct {
	HT  decimal.Decimal
	VAT decimal.Decimal
	TTC decimal.Decimal
}

func (e *Engine) SplitTopUp(ht decimal.Decimal) TopUpSplit {
	vat := ht.Mul(e.rates.VAT).Round(2)
	return TopUpSplit{HT: ht, VAT: vat, TTC: ht.Add(vat)}
}

// FromCents converts a ledger amount to euros.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts euros to a ledger amount, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
