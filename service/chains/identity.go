package chains

import (
	"fmt"
	"strconv"
	"strings"
)

// SolanaSentinel is the chain identity used for Solana, which has no numeric chain id.
const SolanaSentinel = "SOL"

// Family distinguishes the two incompatible chain families.
type Family int

const (
	FamilyNone Family = iota
	FamilyEVM
	FamilySolana
)

func (f Family) String() string {
	switch f {
	case FamilyEVM:
		return "evm"
	case FamilySolana:
		return "solana"
	default:
		return "none"
	}
}

// Identity is the active chain discriminator: an EVM numeric chain id,
// the Solana sentinel, or empty.
type Identity struct {
	family  Family
	chainID uint64
}

// EVM returns the identity of an EVM chain.
func EVM(chainID uint64) Identity {
	return Identity{family: FamilyEVM, chainID: chainID}
}

// Solana is the identity of the Solana chain family.
var Solana = Identity{family: FamilySolana}

// Family returns the chain family of the identity.
func (i Identity) Family() Family { return i.family }

func (i Identity) IsZero() bool   { return i.family == FamilyNone }
func (i Identity) IsEVM() bool    { return i.family == FamilyEVM }
func (i Identity) IsSolana() bool { return i.family == FamilySolana }

// ChainID returns the numeric EVM chain id, or 0 for non-EVM identities.
func (i Identity) ChainID() uint64 {
	if i.family != FamilyEVM {
		return 0
	}
	return i.chainID
}

// Hex returns the 0x-prefixed chain id used by EVM providers.
func (i Identity) Hex() string {
	if i.family != FamilyEVM {
		return ""
	}
	return "0x" + strconv.FormatUint(i.chainID, 16)
}

func (i Identity) String() string {
	switch i.family {
	case FamilyEVM:
		return strconv.FormatUint(i.chainID, 10)
	case FamilySolana:
		return SolanaSentinel
	default:
		return ""
	}
}

// ParseIdentity accepts "SOL", a 0x-prefixed hex chain id or a decimal chain id.
// The empty string parses to the zero identity.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Identity{}, nil
	case strings.EqualFold(s, SolanaSentinel):
		return Solana, nil
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		id, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid hex chain id %q: %w", s, err)
		}
		return EVM(id), nil
	default:
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return EVM(id), nil
	}
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
