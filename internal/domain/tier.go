package domain

import (
	"fmt"
	"strings"
)

// Tier is the ordered subscription level. TierNone ranks below every real
// tier and is what an absent gift requirement resolves to.
type Tier int

const (
	TierNone Tier = iota
	TierBasic
	TierPremium
	TierElite
)

// ParseTier accepts tier names case-insensitively. Unknown names are an error.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return TierBasic, nil
	case "premium":
		return TierPremium, nil
	case "elite":
		return TierElite, nil
	}
	return TierNone, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "Basic"
	case TierPremium:
		return "Premium"
	case TierElite:
		return "Elite"
	}
	return "None"
}

// Valid reports whether t is one of the purchasable tiers.
func (t Tier) Valid() bool {
	return t >= TierBasic && t <= TierElite
}

// Satisfies reports whether t ranks at or above required.
func (t Tier) Satisfies(required Tier) bool {
	return t >= required
}

// Role is the users.role value granted by this tier.
func (t Tier) Role() string {
	if !t.Valid() {
		return RoleUser
	}
	return strings.ToLower(t.String())
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
