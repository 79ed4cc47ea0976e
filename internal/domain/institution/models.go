// Package institution holds the institutions accounts are synced from.
// Exchanges have a single institution per source.
package institution

import (
	"errors"
	"strings"
	"time"
)

// Source identifies the remote system a record was synced from.
type Source string

const (
	SourcePoloniex Source = "poloniex"
	SourceCoinbase Source = "coinbase"
)

// Sources lists every exchange source the service can sync.
var Sources = []Source{SourcePoloniex, SourceCoinbase}

var (
	ErrInstitutionNotFound = errors.New("institution not found")
	ErrInvalidSource       = errors.New("invalid source")
)

// ParseSource converts a case-insensitive name into a Source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", ErrInvalidSource
	}
	return src, nil
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

func (s Source) String() string {
	return string(s)
}

// DisplayName is the name shown for the institution of this source.
func (s Source) DisplayName() string {
	switch s {
	case SourcePoloniex:
		return "Poloniex"
	case SourceCoinbase:
		return "Coinbase"
	default:
		return string(s)
	}
}

type Institution struct {
	ID                  int64     `json:"id"`
	Source              Source    `json:"source"`
	SourceInstitutionID string    `json:"sourceInstitutionId"`
	Name                string    `json:"name"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
