package account

// Address is a saved shipping address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	IsDefault  bool   `json:"is_default"`
}

// NormalizeAddresses leaves at most one address flagged as default.
// preferred is the index of an address the current write explicitly made
// default; it wins when flagged. Otherwise the first flagged address wins.
// Pass -1 when the write names no particular address.
func NormalizeAddresses(addrs []Address, preferred int) []Address {
	winner := -1
	if preferred >= 0 && preferred < len(addrs) && addrs[preferred].IsDefault {
		winner = preferred
	} else {
		for i, a := range addrs {
			if a.IsDefault {
				winner = i
				break
			}
		}
	}

	out := make([]Address, len(addrs))
	for i, a := range addrs {
		a.IsDefault = i == winner
		out[i] = a
	}
	return out
}

// DefaultAddress returns the default address, if any.
func DefaultAddress(addrs []Address) (Address, bool) {
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}
