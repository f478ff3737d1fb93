package models

// AddressSuggestion is one result of an address autocomplete lookup.
type AddressSuggestion struct {
	Label    string  `json:"label"`
	Street   string  `json:"street"`
	Postcode string  `json:"postcode"`
	City     string  `json:"city"`
	Score    float64 `json:"score"`
}
