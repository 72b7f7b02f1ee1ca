package events

import (
	"log"
	"sync"
)

// Callback receives one dispatched event. Callbacks must not block; long
// running reactions run on their own goroutine and are merely kicked off here,
// otherwise they stall the output pump feeding the dispatcher.
type Callback func(Event)

// Handle identifies one registration for later removal.
type Handle uint64

type registration struct {
	handle Handle
	fn     Callback
}

// Dispatcher fans typed events out to per-category callback lists. Delivery
// is synchronous and in registration order.
type Dispatcher struct {
	mu         sync.Mutex
	nextHandle Handle
	slots      [categoryCount][]registration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a callback to the category's ordered list and returns a
// handle for removal.
func (d *Dispatcher) Register(category Category, fn Callback) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextHandle++
	h := d.nextHandle
	d.slots[category] = append(d.slots[category], registration{handle: h, fn: fn})
	return h
}

// Remove deletes a registration by handle. Removing an unknown handle is a
// no-op.
func (d *Dispatcher) Remove(category Category, handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot := d.slots[category]
	for i, reg := range slot {
		if reg.handle == handle {
			d.slots[category] = append(slot[:i:i], slot[i+1:]...)
			return
		}
	}
}

// Dispatch delivers the event to every callback registered for its category,
// in registration order. A panicking callback is logged and skipped so one
// bad reaction cannot kill the output pump.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.Lock()
	slot := d.slots[event.Category]
	regs := make([]registration, len(slot))
	copy(regs, slot)
	d.mu.Unlock()

	for _, reg := range regs {
		d.invoke(reg, event)
	}
}

func (d *Dispatcher) invoke(reg registration, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] callback panic on %s: %v", event.Category, r)
		}
	}()
	reg.fn(event)
}
