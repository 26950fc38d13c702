package subject

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed subject")

type Type string

const (
	TypeUser  Type = "USER"
	TypeAdmin Type = "ADMIN"
	TypeStaff Type = "STAFF"
)

var knownTypes = map[Type]struct{}{
	TypeUser:  {},
	TypeAdmin: {},
	TypeStaff: {},
}

func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if _, ok := knownTypes[t]; !ok {
		return "", fmt.Errorf("%w: unknown subject type %q", ErrMalformed, raw)
	}
	return t, nil
}

// Subject is the authenticated principal. Parsed once at the boundary,
// passed as a structured value everywhere else.
type Subject struct {
	Type Type
	ID   uint
}

func (s Subject) String() string {
	return fmt.Sprintf("%s-%d", s.Type, s.ID)
}

// Parse decodes the "TYPE-ID" form used in the token "sub" claim.
func Parse(raw string) (Subject, error) {
	typePart, idPart, found := strings.Cut(raw, "-")
	if !found || typePart == "" || idPart == "" {
		return Subject{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}

	t, err := ParseType(typePart)
	if err != nil {
		return Subject{}, err
	}

	id, err := strconv.ParseUint(idPart, 10, 32)
	if err != nil || id == 0 {
		return Subject{}, fmt.Errorf("%w: bad id in %q", ErrMalformed, raw)
	}

	return Subject{Type: t, ID: uint(id)}, nil
}
