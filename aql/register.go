package aql

// RegisterID addresses one column of an item block.
type RegisterID uint32

// MaxRegisterID is the largest register index a block may have.
const MaxRegisterID RegisterID = 1000

// RegisterSet is an ordered set of registers.
type RegisterSet []RegisterID

// Contains reports whether reg is part of the set.
func (s RegisterSet) Contains(reg RegisterID) bool {
	for _, r := range s {
		if r == reg {
			return true
		}
	}
	return false
}
