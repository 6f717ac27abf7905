package broker

import (
	"fmt"
	"math/big"

	"settlenet/native/auth"
	"settlenet/native/ledger"
)

// Order captures a signed intent to exchange one asset for another. Offers
// and fills share this shape; they differ only in the domain their content
// hash is computed under. The hash identifies the order everywhere: only the
// remaining available amount is stored against it, so the full terms are
// re-supplied and implicitly re-validated on every reference.
type Order struct {
	Maker       [20]byte
	OfferAsset  string
	OfferAmount *big.Int
	WantAsset   string
	WantAmount  *big.Int
	FeeAsset    string
	FeeAmount   *big.Int
	Nonce       uint64
	Signature   []byte
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.OfferAmount != nil {
		clone.OfferAmount = new(big.Int).Set(o.OfferAmount)
	}
	if o.WantAmount != nil {
		clone.WantAmount = new(big.Int).Set(o.WantAmount)
	}
	if o.FeeAmount != nil {
		clone.FeeAmount = new(big.Int).Set(o.FeeAmount)
	} else {
		clone.FeeAmount = big.NewInt(0)
	}
	clone.Signature = append([]byte(nil), o.Signature...)
	return &clone
}

// SanitizeOrder validates the order terms and returns a clone with canonical
// asset casing. The give and want assets must differ and both principal
// amounts must be positive.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("broker: nil order")
	}
	clone := o.Clone()
	offerAsset, err := ledger.NormalizeAsset(clone.OfferAsset)
	if err != nil {
		return nil, err
	}
	wantAsset, err := ledger.NormalizeAsset(clone.WantAsset)
	if err != nil {
		return nil, err
	}
	feeAsset, err := ledger.NormalizeAsset(clone.FeeAsset)
	if err != nil {
		return nil, err
	}
	if offerAsset == wantAsset {
		return nil, fmt.Errorf("broker: offer and want asset must differ")
	}
	if clone.OfferAmount == nil || clone.OfferAmount.Sign() <= 0 {
		return nil, fmt.Errorf("broker: offer amount must be positive")
	}
	if clone.WantAmount == nil || clone.WantAmount.Sign() <= 0 {
		return nil, fmt.Errorf("broker: want amount must be positive")
	}
	if clone.FeeAmount.Sign() < 0 {
		return nil, fmt.Errorf("broker: fee amount must be non-negative")
	}
	clone.OfferAsset = offerAsset
	clone.WantAsset = wantAsset
	clone.FeeAsset = feeAsset
	return clone, nil
}

// Hash returns the order's content hash under the supplied domain. The hash
// is also the digest the maker signs.
func (o *Order) Hash(domain string) ([32]byte, error) {
	if o == nil {
		return [32]byte{}, fmt.Errorf("broker: nil order")
	}
	return auth.OrderDigest(domain, o.Maker, o.OfferAsset, o.OfferAmount, o.WantAsset, o.WantAmount, o.FeeAsset, o.FeeAmount, o.Nonce)
}

// Match consumes part of an offer's available amount against a fill.
// TakeAmount is denominated in the offer's give asset.
type Match struct {
	OfferIndex int
	FillIndex  int
	TakeAmount *big.Int
}

// TradeBatch bundles the offers, fills and matching instructions for one
// settlement call.
type TradeBatch struct {
	Offers   []Order
	Fills    []Order
	Matches  []Match
	Operator [20]byte
}

// NetworkMatch routes part of an offer's available amount through an external
// liquidity venue instead of a signed counter-order.
type NetworkMatch struct {
	OfferIndex int
	TakeAmount *big.Int
	Venue      string
	Data       []byte
}

// NetworkBatch bundles offers and venue routing instructions for one network
// trade call.
type NetworkBatch struct {
	Offers   []Order
	Matches  []NetworkMatch
	Operator [20]byte
}
