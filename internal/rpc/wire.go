package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// U64 is a 64-bit value that marshals as a JSON string, per spec.md §6's
// "Integer wire convention" — every block index, subaddress index, and
// token value crosses the wire this way so precision survives JSON
// number parsing in clients that use float64.
type U64 uint64

func (u U64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *U64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rpc: u64 must be a JSON string: %w", err)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("rpc: parse u64: %w", err)
	}
	*u = U64(v)
	return nil
}

func u64Ptr(v uint64) *U64 {
	u := U64(v)
	return &u
}
