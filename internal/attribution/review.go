package attribution

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Rating is a 1 to 5 star rating. It decodes from the review platform's
// enum names (ONE..FIVE, optionally STAR_RATING_ prefixed) or from numbers.
// Zero means unknown.
type Rating int

var ratingNames = map[string]Rating{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// ParseRating converts a rating label or number to a Rating. Numbers are
// rounded and clamped to 1..5.
func ParseRating(s string) (Rating, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "STAR_RATING_")
	if s == "" || s == "STAR_RATING_UNSPECIFIED" || s == "UNSPECIFIED" {
		return 0, nil
	}
	if r, ok := ratingNames[s]; ok {
		return r, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid rating %q", s)
	}
	return clampRating(f), nil
}

func clampRating(f float64) Rating {
	switch {
	case f < 1:
		return 1
	case f > 5:
		return 5
	}
	return Rating(f + 0.5)
}

// UnmarshalJSON accepts both strings and numbers
func (r *Rating) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*r = clampRating(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rating must be a string or number: %w", err)
	}
	parsed, err := ParseRating(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Review is an externally fetched review
type Review struct {
	ReviewerName string    `json:"reviewer_name"`
	Rating       Rating    `json:"rating"`
	Text         string    `json:"text"`
	Time         time.Time `json:"time"`
}

// UnmarshalJSON also accepts the feed's camelCase reviewerName key
func (r *Review) UnmarshalJSON(data []byte) error {
	type plain Review
	aux := struct {
		*plain
		CamelName string `json:"reviewerName"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ReviewerName == "" {
		r.ReviewerName = aux.CamelName
	}
	return nil
}
