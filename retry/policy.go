// Package retry defines the redelivery policy for leased-but-unacknowledged
// messages, giving the queue its at-least-once guarantee.
package retry

import (
	"fmt"
	"time"
)

// Policy configures how unconfirmed leases are recovered.
//
// A lease that is never acknowledged stays invisible until the reaper
// notices that its delivery_time is older than RedeliveryTimeout and
// reverts it to the deliverable state. Delivery counts accumulate across
// attempts, so MaxDeliveryCount caps how often one message is retried
// before it is discarded.
type Policy struct {
	RedeliveryTimeout time.Duration // Lease age after which a message is requeued
	SweepInterval     time.Duration // How often the reaper runs
	MaxDeliveryCount  int           // Deliveries after which a message is discarded (0 = unlimited)
}

// DefaultPolicy returns the production default: leases time out after two
// minutes, the reaper sweeps every thirty seconds, and messages are
// discarded after ten delivery attempts.
func DefaultPolicy() Policy {
	return Policy{
		RedeliveryTimeout: 2 * time.Minute,
		SweepInterval:     30 * time.Second,
		MaxDeliveryCount:  10,
	}
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.RedeliveryTimeout <= 0 {
		return fmt.Errorf("redelivery timeout must be positive, got %v", p.RedeliveryTimeout)
	}
	if p.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", p.SweepInterval)
	}
	if p.MaxDeliveryCount < 0 {
		return fmt.Errorf("max delivery count must not be negative, got %d", p.MaxDeliveryCount)
	}
	return nil
}

// Cutoff returns the delivery-time threshold for requeueing: leases taken
// before this instant are considered abandoned.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.RedeliveryTimeout)
}

// IsExhausted reports whether a message has used up its delivery attempts.
func (p Policy) IsExhausted(deliveryCount int) bool {
	return p.MaxDeliveryCount > 0 && deliveryCount >= p.MaxDeliveryCount
}
