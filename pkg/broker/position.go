package broker

import "math"

// Position is the broker's local ledger entry for one symbol. Size is
// signed: positive long, negative short. Price is the volume-weighted
// average entry price of the open size.
type Position struct {
	Symbol string
	Size   float64
	Price  float64
}

// Update applies a signed execution to the position. Increasing the
// position reweights the average price, reducing it keeps the price,
// flipping through zero restarts it at the execution price.
func (p *Position) Update(size, price float64) {
	if size == 0 {
		return
	}
	newSize := p.Size + size
	switch {
	case p.Size == 0:
		p.Price = price
	case newSize == 0:
		p.Price = 0
	case (p.Size > 0) != (newSize > 0):
		// Flipped direction: the surviving size was opened at price.
		p.Price = price
	case math.Abs(newSize) > math.Abs(p.Size):
		p.Price = (p.Price*p.Size + price*size) / newSize
	}
	p.Size = newSize
}

// Clone returns an independent copy.
func (p *Position) Clone() Position {
	return Position{Symbol: p.Symbol, Size: p.Size, Price: p.Price}
}
