package selector

import (
	"math/rand"

	"github.com/gagliardetto/solana-go"

	cerrors "github.com/lugondev/go-ctoken/internal/errors"
	"github.com/lugondev/go-ctoken/pkg/types"
)

// PoolHeadroom is the balance multiple a pool needs to be chosen alone.
const PoolHeadroom = 10

// SelectPools returns the pools to try for moving amount out of custody. The
// first initialized pool holding at least PoolHeadroom times amount is
// returned alone; otherwise every initialized pool is returned in an order
// shuffled by rng. A nil rng uses the global source.
func SelectPools(mint solana.PublicKey, pools []types.TokenPoolInfo, amount uint64, rng *rand.Rand) ([]types.TokenPoolInfo, error) {
	var initialized []types.TokenPoolInfo
	for _, p := range pools {
		if p.IsInitialized {
			initialized = append(initialized, p)
		}
	}
	if len(initialized) == 0 {
		return nil, cerrors.NoInitializedPool(mint)
	}

	for _, p := range initialized {
		if hasHeadroom(p.Balance, amount) {
			return []types.TokenPoolInfo{p}, nil
		}
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(initialized), func(i, j int) {
		initialized[i], initialized[j] = initialized[j], initialized[i]
	})
	return initialized, nil
}

// SelectPool returns the first pool SelectPools would try.
func SelectPool(mint solana.PublicKey, pools []types.TokenPoolInfo, amount uint64, rng *rand.Rand) (types.TokenPoolInfo, error) {
	selected, err := SelectPools(mint, pools, amount, rng)
	if err != nil {
		return types.TokenPoolInfo{}, err
	}
	return selected[0], nil
}

// FirstInitializedPool returns the lowest-index initialized pool. Deposits
// into custody use it since any pool can receive.
func FirstInitializedPool(mint solana.PublicKey, pools []types.TokenPoolInfo) (types.TokenPoolInfo, error) {
	for _, p := range pools {
		if p.IsInitialized {
			return p, nil
		}
	}
	return types.TokenPoolInfo{}, cerrors.NoInitializedPool(mint)
}

func hasHeadroom(balance, amount uint64) bool {
	if amount > ^uint64(0)/PoolHeadroom {
		return false
	}
	return balance >= amount*PoolHeadroom
}
