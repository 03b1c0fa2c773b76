// Package engine tracks every in-flight swap as a SwapRecord keyed by
// hashlock and turns normalized chain events into state transitions and
// outbound actions.
package engine

import (
	"fmt"

	"github.com/interstellar-swap/relayer/internal/types"
)

// CallKind names the contract call an Action asks for.
type CallKind string

const (
	CallDeploySrc CallKind = "deploy_src"
	CallDeployDst CallKind = "deploy_dst"
	CallWithdraw  CallKind = "withdraw"
	CallCancel    CallKind = "cancel"
)

// Action is an outbound instruction: which call to make on which chain for
// which swap. Args carry pre-encoded call arguments when the engine has
// them; submission, gas and signing live elsewhere.
type Action struct {
	Chain    types.Chain
	Call     CallKind
	Hashlock types.Hashlock
	Args     []byte
}

// applyStatus folds one event into the record's per-chain status. Statuses
// only move forward (None -> Deployed -> Withdrawn | Cancelled); duplicates
// are no-ops and conflicting terminal transitions are rejected.
func applyStatus(r *types.SwapRecord, ev types.NormalizedEvent) (changed bool, err error) {
	current := r.StatusOn(ev.Chain)

	var next types.EscrowStatus
	switch ev.Kind {
	case types.EventDeposited:
		next = types.EscrowDeployed
	case types.EventClaimed:
		next = types.EscrowWithdrawn
	case types.EventCancelled:
		next = types.EscrowCancelled
	default:
		return false, fmt.Errorf("event kind %q: %w", ev.Kind, types.ErrUnknownEvent)
	}

	if next == current {
		return false, nil
	}
	if current.Terminal() {
		return false, fmt.Errorf("%s escrow already %s, ignoring %s: %w",
			ev.Chain, current, ev.Kind, types.ErrUnknownEvent)
	}
	// A Claimed or Cancelled arriving before its Deposited seeds the skipped
	// Deployed step implicitly; the terminal status subsumes it.
	setStatus(r, ev.Chain, next)

	if ev.Kind == types.EventClaimed && len(ev.Secret) > 0 && len(r.Secret) == 0 {
		r.Secret = append([]byte(nil), ev.Secret...)
	}
	return true, nil
}

func setStatus(r *types.SwapRecord, chain types.Chain, s types.EscrowStatus) {
	if chain == types.ChainStellar {
		r.DstStatus = s
		return
	}
	r.SrcStatus = s
}

// collapse derives the cross-chain SwapState from the two per-chain
// statuses.
func collapse(r *types.SwapRecord) types.SwapState {
	src, dst := r.SrcStatus, r.DstStatus

	switch {
	case src == types.EscrowWithdrawn && dst == types.EscrowWithdrawn:
		return types.StateCompleted
	case src == types.EscrowCancelled && dst != types.EscrowWithdrawn,
		dst == types.EscrowCancelled && src != types.EscrowWithdrawn:
		return types.StateCancelled
	case src == types.EscrowWithdrawn:
		return types.StateSrcWithdrawn
	case dst == types.EscrowWithdrawn:
		return types.StateDstWithdrawn
	case src == types.EscrowDeployed && dst == types.EscrowDeployed:
		return types.StateBothDeposited
	case src == types.EscrowDeployed:
		return types.StateSrcDeposited
	case dst == types.EscrowDeployed:
		return types.StateDstDeposited
	default:
		return types.StateCreated
	}
}

// NextAction decides what should happen to the swap at unix time now. It is
// pure: callers re-evaluate it whenever the record or the clock moves.
//
// Deploys are sequenced src first. Withdrawals wait for the secret and the
// withdrawal timelock; cancellation fires once the cancellation timelock
// passes with an escrow still deployed. Public windows do not change which
// call is made, only who may make it, so the same action is emitted.
func NextAction(r *types.SwapRecord, now uint64) (Action, bool) {
	if r.State.Terminal() {
		return Action{}, false
	}

	if r.SrcStatus == types.EscrowNone {
		return Action{Chain: types.ChainEthereum, Call: CallDeploySrc, Hashlock: r.Hashlock}, true
	}
	if r.DstStatus == types.EscrowNone && r.SrcStatus == types.EscrowDeployed {
		return Action{Chain: types.ChainStellar, Call: CallDeployDst, Hashlock: r.Hashlock}, true
	}

	withdrawAt := r.DeployedAt + r.Timelocks.Withdrawal
	cancelAt := r.DeployedAt + r.Timelocks.Cancellation

	if len(r.Secret) > 0 && now >= withdrawAt {
		// Destination pays out first so the maker is made whole before the
		// taker claims the source side.
		if r.DstStatus == types.EscrowDeployed {
			return Action{Chain: types.ChainStellar, Call: CallWithdraw, Hashlock: r.Hashlock}, true
		}
		if r.SrcStatus == types.EscrowDeployed {
			return Action{Chain: types.ChainEthereum, Call: CallWithdraw, Hashlock: r.Hashlock}, true
		}
	}

	if now >= cancelAt {
		if r.SrcStatus == types.EscrowDeployed {
			return Action{Chain: types.ChainEthereum, Call: CallCancel, Hashlock: r.Hashlock}, true
		}
		if r.DstStatus == types.EscrowDeployed {
			return Action{Chain: types.ChainStellar, Call: CallCancel, Hashlock: r.Hashlock}, true
		}
	}

	return Action{}, false
}
