package enums

import "fmt"

// CheckoutStep is the checkout session's state-machine state. Transitions are
// enforced in internal/checkout; adding a step means extending the transition
// table there, not scattering string comparisons.
type CheckoutStep string

const (
	StepCart         CheckoutStep = "cart"
	StepCheckout     CheckoutStep = "checkout"
	StepConfirmation CheckoutStep = "confirmation"
)

var validCheckoutSteps = []CheckoutStep{
	StepCart,
	StepCheckout,
	StepConfirmation,
}

// String implements fmt.Stringer.
func (s CheckoutStep) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutStep.
func (s CheckoutStep) IsValid() bool {
	for _, candidate := range validCheckoutSteps {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	for _, candidate := range validCheckoutSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout step %q", value)
}
