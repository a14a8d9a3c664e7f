package testutil

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID returns a fixed, valid version 7 UUID for endpoint n.
//
// Golden traces embed session ids; fixed ones keep the traces stable.
func SessionID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012d", n))
}
