package classifier

import (
	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-ctoken/pkg/types"
)

// SpendableAmountForAuthority returns what authority can move out of v. The
// owner can move the total. A delegate can move, per source it is delegate
// of, the smaller of the amount and the delegated amount.
func SpendableAmountForAuthority(v *types.UnifiedAccountView, authority solana.PublicKey) uint64 {
	if v.Owner.Equals(authority) {
		return v.TotalAmount
	}
	var sum uint64
	for _, s := range v.Sources {
		if s.Delegate == nil || !s.Delegate.Equals(authority) {
			continue
		}
		sum += min(s.Amount, s.DelegatedAmount)
	}
	return sum
}

// IsAuthority reports whether authority owns v or is the delegate of at least one source.
func IsAuthority(v *types.UnifiedAccountView, authority solana.PublicKey) bool {
	if v.Owner.Equals(authority) {
		return true
	}
	for _, s := range v.Sources {
		if s.Delegate != nil && s.Delegate.Equals(authority) {
			return true
		}
	}
	return false
}

// FilterForAuthority returns a view restricted to the sources authority can
// spend. The total is the spendable amount, not the sum of the kept sources.
func FilterForAuthority(v *types.UnifiedAccountView, authority solana.PublicKey) *types.UnifiedAccountView {
	isOwner := v.Owner.Equals(authority)

	var kept []types.TokenAccountSource
	for _, s := range v.Sources {
		if isOwner || (s.Delegate != nil && s.Delegate.Equals(authority)) {
			kept = append(kept, s)
		}
	}

	out := BuildView(kept, v.Address)
	out.Owner = v.Owner
	out.Mint = v.Mint
	if len(kept) > 0 {
		out.TotalAmount = SpendableAmountForAuthority(v, authority)
	}
	return out
}
