package vault

import "errors"

var (
	// ErrBelowMinDeposit is returned when the principal is under the
	// configured minimum. Small deposits are rejected outright; the
	// minimum also backs the first-depositor protection.
	ErrBelowMinDeposit = errors.New("vault: deposit below minimum")

	// ErrUnknownAccount is returned when redeeming from an account that
	// has never deposited.
	ErrUnknownAccount = errors.New("vault: unknown account")

	// ErrInsufficientShares is returned when a redemption asks for more
	// shares than the account holds.
	ErrInsufficientShares = errors.New("vault: insufficient shares")

	// ErrInvalidShares is returned for a non-positive share amount.
	ErrInvalidShares = errors.New("vault: share amount must be positive")

	// ErrNoActivePosition is returned when rebalancing with no hedge open.
	ErrNoActivePosition = errors.New("vault: no active hedge position")

	// ErrRebalanceNotNeeded is returned when the hedge health is still at
	// or above the rebalance threshold.
	ErrRebalanceNotNeeded = errors.New("vault: hedge health above rebalance threshold")

	// ErrRebalanceInProgress is returned when the ledger restarted inside
	// an unfinished rebalance. User operations stay blocked until an
	// operator resolves the position state.
	ErrRebalanceInProgress = errors.New("vault: rebalance in progress")

	// ErrIncreaseRefused is returned when a deposit would grow the hedge
	// while its health is under the increase guard.
	ErrIncreaseRefused = errors.New("vault: hedge health too low to increase position")

	// ErrProviderVerification is returned when a venue call reported
	// success but the re-read state does not show the expected effect.
	// The operation is fully rolled back.
	ErrProviderVerification = errors.New("vault: venue state does not match expected post-condition")

	// ErrReentrancy is returned when a mutating operation is entered
	// while another one is still in flight.
	ErrReentrancy = errors.New("vault: operation already in flight")

	// ErrNothingToHarvest is returned when the share price is at or below
	// the high-water mark.
	ErrNothingToHarvest = errors.New("vault: share price at or below high-water mark")
)
