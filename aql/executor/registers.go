package executor

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// RegisterInfos describes the register layout around one executor. It is
// supplied by the plan and treated as opaque configuration.
type RegisterInfos struct {
	NumInputRegisters  int
	NumOutputRegisters int
	// OutputRegisters are written by the executor.
	OutputRegisters aql.RegisterSet
	// RegistersToKeep are copied from input data rows. Nil keeps every
	// input register.
	RegistersToKeep aql.RegisterSet
}

// NewRegisterInfos creates infos that keep all input registers and append
// the given outputs.
func NewRegisterInfos(numIn, numOut int, outputs ...aql.RegisterID) RegisterInfos {
	return RegisterInfos{
		NumInputRegisters:  numIn,
		NumOutputRegisters: numOut,
		OutputRegisters:    outputs,
	}
}

// Validate checks register bounds.
func (r RegisterInfos) Validate() error {
	for _, reg := range r.OutputRegisters {
		if int(reg) >= r.NumOutputRegisters {
			return errors.Newf("output register %d out of range [0,%d)", reg, r.NumOutputRegisters)
		}
	}
	for _, reg := range r.RegistersToKeep {
		if int(reg) >= r.NumInputRegisters || int(reg) >= r.NumOutputRegisters {
			return errors.Newf("kept register %d out of range", reg)
		}
	}
	if r.RegistersToKeep == nil && r.NumInputRegisters > r.NumOutputRegisters {
		return errors.Newf("cannot keep %d input registers in %d output registers",
			r.NumInputRegisters, r.NumOutputRegisters)
	}
	return nil
}

func (r RegisterInfos) keptRegisters() aql.RegisterSet {
	if r.RegistersToKeep != nil {
		return r.RegistersToKeep
	}
	regs := make(aql.RegisterSet, r.NumInputRegisters)
	for i := range regs {
		regs[i] = aql.RegisterID(i)
	}
	return regs
}
