package pricing

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/engagemarket/backend/internal/models"
)

// Range is the configured price span of a service, in euros.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Midpoint returns the suggested price for the range rounded to cents.
func (r Range) Midpoint() decimal.Decimal {
	return r.Min.Add(r.Max).Div(decimal.NewFromInt(2)).Round(2)
}

// Bracket covers follower counts in [MinFollowers, MaxFollowers).
// MaxFollowers == 0 means the bracket is unbounded.
type Bracket struct {
	MinFollowers int64
	MaxFollowers int64
	Prices       map[models.ServiceType]Range
}

func (b Bracket) contains(followers int64) bool {
	return followers >= b.MinFollowers && (b.MaxFollowers == 0 || followers < b.MaxFollowers)
}

func eur(min, max string) Range {
	return Range{Min: decimal.RequireFromString(min), Max: decimal.RequireFromString(max)}
}

// DefaultBrackets returns the built-in price table.
func DefaultBrackets() []Bracket {
	return []Bracket{
		{MinFollowers: 0, MaxFollowers: 1000, Prices: map[models.ServiceType]Range{
			models.ServiceLike: eur("1", "2"), models.ServiceComment: eur("2", "4"),
			models.ServiceRepostStory: eur("3", "5"), models.ServiceFollow: eur("2", "4"),
		}},
		{MinFollowers: 1000, MaxFollowers: 10000, Prices: map[models.ServiceType]Range{
			models.ServiceLike: eur("2", "4"), models.ServiceComment: eur("4", "8"),
			models.ServiceRepostStory: eur("5", "10"), models.ServiceFollow: eur("4", "8"),
		}},
		{MinFollowers: 10000, MaxFollowers: 50000, Prices: map[models.ServiceType]Range{
			models.ServiceLike: eur("4", "8"), models.ServiceComment: eur("8", "15"),
			models.ServiceRepostStory: eur("10", "20"), models.ServiceFollow: eur("8", "15"),
		}},
		{MinFollowers: 50000, MaxFollowers: 100000, Prices: map[models.ServiceType]Range{
			models.ServiceLike: eur("8", "15"), models.ServiceComment: eur("15", "30"),
			models.ServiceRepostStory: eur("20", "40"), models.ServiceFollow: eur("15", "30"),
		}},
		{MinFollowers: 100000, MaxFollowers: 0, Prices: map[models.ServiceType]Range{
			models.ServiceLike: eur("15", "30"), models.ServiceComment: eur("30", "60"),
			models.ServiceRepostStory: eur("40", "80"), models.ServiceFollow: eur("30", "60"),
		}},
	}
}

var errBadBrackets = errors.New("invalid pricing brackets")

// ValidateBrackets checks that brackets start at zero, are contiguous and
// ordered, end unbounded, price every service and never get cheaper.
func ValidateBrackets(brackets []Bracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("%w: empty table", errBadBrackets)
	}
	if brackets[0].MinFollowers != 0 {
		return fmt.Errorf("%w: first bracket must start at 0", errBadBrackets)
	}
	for i, b := range brackets {
		last := i == len(brackets)-1
		if last && b.MaxFollowers != 0 {
			return fmt.Errorf("%w: last bracket must be unbounded", errBadBrackets)
		}
		if !last && b.MaxFollowers <= b.MinFollowers {
			return fmt.Errorf("%w: bracket %d has empty range", errBadBrackets, i)
		}
		if i > 0 && b.MinFollowers != brackets[i-1].MaxFollowers {
			return fmt.Errorf("%w: bracket %d does not start where bracket %d ends", errBadBrackets, i, i-1)
		}
		for _, svc := range models.Services {
			r, ok := b.Prices[svc]
			if !ok {
				return fmt.Errorf("%w: bracket %d has no %s price", errBadBrackets, i, svc)
			}
			if r.Min.IsNegative() || r.Max.LessThan(r.Min) {
				return fmt.Errorf("%w: bracket %d has bad %s range", errBadBrackets, i, svc)
			}
			if i > 0 && r.Midpoint().LessThan(brackets[i-1].Prices[svc].Midpoint()) {
				return fmt.Errorf("%w: %s gets cheaper in bracket %d", errBadBrackets, svc, i)
			}
		}
	}
	return nil
}

type bracketFile struct {
	Brackets []struct {
		MinFollowers int64 `yaml:"min_followers"`
		MaxFollowers int64 `yaml:"max_followers"`
		Prices       map[string]struct {
			Min string `yaml:"min"`
			Max string `yaml:"max"`
		} `yaml:"prices"`
	} `yaml:"brackets"`
}

// ParseBrackets decodes a YAML price table.
func ParseBrackets(data []byte) ([]Bracket, error) {
	var f bracketFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse brackets: %w", err)
	}

	brackets := make([]Bracket, 0, len(f.Brackets))
	for i, fb := range f.Brackets {
		b := Bracket{
			MinFollowers: fb.MinFollowers,
			MaxFollowers: fb.MaxFollowers,
			Prices:       make(map[models.ServiceType]Range, len(fb.Prices)),
		}
		for name, p := range fb.Prices {
			svc := models.ServiceType(name)
			if !svc.Valid() {
				return nil, fmt.Errorf("%w: bracket %d: unknown service %q", errBadBrackets, i, name)
			}
			min, err := decimal.NewFromString(p.Min)
			if err != nil {
				return nil, fmt.Errorf("%w: bracket %d %s min: %v", errBadBrackets, i, name, err)
			}
			max, err := decimal.NewFromString(p.Max)
			if err != nil {
				return nil, fmt.Errorf("%w: bracket %d %s max: %v", errBadBrackets, i, name, err)
			}
			b.Prices[svc] = Range{Min: min, Max: max}
		}
		brackets = append(brackets, b)
	}

	if err := ValidateBrackets(brackets); err != nil {
		return nil, err
	}
	return brackets, nil
}

// LoadBrackets reads a YAML price table from disk.
func LoadBrackets(path string) ([]Bracket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBrackets(data)
}
