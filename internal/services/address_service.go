package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/engagemarket/backend/internal/models"
)

const (
	defaultAddressLimit = 5
	maxAddressLimit     = 20
	maxAddressBody      = 1 << 20
)

// AddressService autocompletes French postal addresses for billing profiles.
type AddressService struct {
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

func NewAddressService(baseURL string, timeout time.Duration, log *logrus.Entry) *AddressService {
	return &AddressService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Search returns at most limit suggestions for query. Queries shorter than
// three characters are rejected by the upstream API, so they return nothing.
func (s *AddressService) Search(ctx context.Context, query string, limit int) ([]models.AddressSuggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 3 {
		return []models.AddressSuggestion{}, nil
	}
	if limit <= 0 || limit > maxAddressLimit {
		limit = defaultAddressLimit
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("address api url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.WithError(err).Warn("[ADDRESS] lookup failed")
		return nil, fmt.Errorf("address lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAddressBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		s.log.WithField("status", resp.StatusCode).Warn("[ADDRESS] upstream error")
		return nil, fmt.Errorf("address lookup: upstream status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("address lookup: invalid JSON response")
	}

	return parseSuggestions(body), nil
}

func parseSuggestions(body []byte) []models.AddressSuggestion {
	out := []models.AddressSuggestion{}
	gjson.GetBytes(body, "features.#.properties").ForEach(func(_, p gjson.Result) bool {
		street := p.Get("name").String()
		if p.Get("type").String() == "municipality" {
			street = ""
		}
		out = append(out, models.AddressSuggestion{
			Label:    p.Get("label").String(),
			Street:   street,
			Postcode: p.Get("postcode").String(),
			City:     p.Get("city").String(),
			Score:    p.Get("score").Float(),
		})
		return true
	})
	return out
}
