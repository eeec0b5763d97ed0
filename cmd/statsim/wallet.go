package main

// wallet is a fixed budget paying for upgrades.
type wallet struct {
	balance float64
}

func (w *wallet) CanAfford(amount float64) bool {
	return w.balance >= amount
}

func (w *wallet) Spend(amount float64) bool {
	if !w.CanAfford(amount) {
		return false
	}
	w.balance -= amount
	return true
}
