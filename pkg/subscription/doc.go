// Package subscription implements handle-based subscriber registries.
//
// A Manager keeps callbacks grouped by topic. Subscribe returns a Handle
// that is later passed to Unsubscribe; handles stay valid only for the
// manager that issued them.
//
// # Delivery
//
// Publish calls every subscriber of a topic synchronously, in subscription
// order, outside the manager's lock. A subscriber may subscribe or
// unsubscribe from inside its callback; the change applies to the next
// Publish. A panicking subscriber is recovered and reported through
// Config.OnPanic; the remaining subscribers still receive the value.
package subscription
