package accel

import (
	"errors"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("accel: injected fault")

// Op names a Device operation for fault injection.
type Op uint8

const (
	OpAllocate Op = iota
	OpCopy
	OpFree
	OpSynchronize
)

// Fault describes when an operation starts failing.
type Fault struct {
	// After is the number of calls that succeed before the fault triggers.
	After int
	// Times limits how many calls fail once triggered. 0 means forever.
	Times int
	// Err is returned on failure. Defaults to ErrInjected.
	Err error
	// Direction restricts OpCopy faults to one direction when Only is set.
	Direction Direction
	Only      bool
}

type faultState struct {
	fault  Fault
	calls  int
	failed int
}

// Faulty wraps a Device and injects failures into selected operations.
type Faulty struct {
	Device

	mu     sync.Mutex
	faults map[Op]*faultState
	calls  map[Op]int
}

// NewFaulty wraps d.
func NewFaulty(d Device) *Faulty {
	return &Faulty{
		Device: d,
		faults: make(map[Op]*faultState),
		calls:  make(map[Op]int),
	}
}

// Inject arms a fault for op, replacing any previous one.
func (f *Faulty) Inject(op Op, fault Fault) {
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	f.mu.Lock()
	f.faults[op] = &faultState{fault: fault}
	f.mu.Unlock()
}

// Clear disarms the fault for op.
func (f *Faulty) Clear(op Op) {
	f.mu.Lock()
	delete(f.faults, op)
	f.mu.Unlock()
}

// Calls returns how many times op was invoked, failed calls included.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faulty) check(op Op, dir Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	st, ok := f.faults[op]
	if !ok {
		return nil
	}
	if op == OpCopy && st.fault.Only && st.fault.Direction != dir {
		return nil
	}
	st.calls++
	if st.calls <= st.fault.After {
		return nil
	}
	if st.fault.Times > 0 && st.failed >= st.fault.Times {
		return nil
	}
	st.failed++
	return st.fault.Err
}

// AllocatePitch implements Device.
func (f *Faulty) AllocatePitch(widthBytes, height int) (Handle, int, error) {
	if err := f.check(OpAllocate, 0); err != nil {
		return 0, 0, err
	}
	return f.Device.AllocatePitch(widthBytes, height)
}

// Copy2D implements Device.
func (f *Faulty) Copy2D(p Copy2DParams) error {
	if err := f.check(OpCopy, p.Direction); err != nil {
		return err
	}
	return f.Device.Copy2D(p)
}

// Free implements Device. The allocation is released even when a fault
// is injected.
func (f *Faulty) Free(h Handle) error {
	if err := f.check(OpFree, 0); err != nil {
		_ = f.Device.Free(h)
		return err
	}
	return f.Device.Free(h)
}

// Synchronize implements Device.
func (f *Faulty) Synchronize() error {
	if err := f.check(OpSynchronize, 0); err != nil {
		return err
	}
	return f.Device.Synchronize()
}

var _ Device = (*Faulty)(nil)
