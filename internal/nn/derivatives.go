package nn

// Derivative evaluates the registered derivative of activation name at the
// pre-activation value x.
func Derivative(name string, x float64) (float64, error) {
	entry, err := lookupActivation(name)
	if err != nil {
		return 0, err
	}
	return entry.derivative(x), nil
}
