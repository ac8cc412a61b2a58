// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package powenetics

// Subscriber receives every validated measurement frame. Update is called
// once per frame, in registration order, on the goroutine that called
// StartMeasurement. Returning stop=true requests that the measurement loop
// end after the current frame; every subscriber is still notified for that
// frame before the loop exits. Returning a non-nil error aborts the loop
// immediately, skipping any subscribers not yet notified for the frame.
//
// The Data pointer is only valid for the duration of the call; its contents
// are overwritten before the next notification.
type Subscriber interface {
	Update(d *Data) (stop bool, err error)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(d *Data) (bool, error)

// Update implements Subscriber.
func (f SubscriberFunc) Update(d *Data) (bool, error) {
	return f(d)
}
