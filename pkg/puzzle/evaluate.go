package puzzle

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
	"github.com/fystack/spendkit/pkg/ledger"
)

// Evaluator is the condition evaluator gateway: it turns a (puzzle,
// solution) pair into the condition list the spend declares, or an error.
// Implementations must be deterministic and side-effect-free; the engine
// treats non-determinism here as a fatal integration bug.
type Evaluator interface {
	Evaluate(puzzle, solution ledger.Program) ([]ledger.Condition, error)
}

// UnauthorizedSupplyChangeError reports a non-zero fungible-asset delta that
// the asset's issuance policy did not authorize.
type UnauthorizedSupplyChangeError struct {
	AssetID ledger.Hash256
	Delta   int64
}

func (e *UnauthorizedSupplyChangeError) Error() string {
	return fmt.Sprintf("puzzle: unauthorized supply change of %d for asset %s", e.Delta, e.AssetID)
}

// NativeEvaluator evaluates the built-in templates. Programs produced by a
// foreign puzzle language need an external gateway implementation instead.
type NativeEvaluator struct{}

func (NativeEvaluator) Evaluate(p, solution ledger.Program) ([]ledger.Condition, error) {
	if len(p) == 0 {
		return nil, ErrUnknownProgram
	}
	switch p[0] {
	case tagStandard:
		return evalStandard(p, solution)
	case tagSettlement:
		return evalSettlement(solution)
	case tagCat:
		return evalCat(p, solution)
	case tagLauncher:
		return evalLauncher(solution)
	case tagSingleton:
		return evalSingleton(p, solution)
	default:
		return nil, fmt.Errorf("%w: tag %#x", ErrUnknownProgram, p[0])
	}
}

func evalStandard(p, solution ledger.Program) ([]ledger.Condition, error) {
	owner, err := standardOwner(p)
	if err != nil {
		return nil, err
	}
	conds, err := ledger.DecodeConditions(solution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	digest, err := ledger.ConditionsHash(conds)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Condition, 0, len(conds)+1)
	out = append(out, conds...)
	out = append(out, ledger.AggSigMe{PublicKey: owner, Message: digest.Bytes()})
	return out, nil
}

func evalSettlement(solution ledger.Program) ([]ledger.Condition, error) {
	sol, err := DecodeSettlementSolution(solution)
	if err != nil {
		return nil, err
	}
	var out []ledger.Condition
	for _, group := range sol.Groups {
		digest := group.Digest()
		out = append(out, ledger.CreatePuzzleAnnouncement{
			Message: ledger.HashConcat(group.Nonce[:], digest[:]).Bytes(),
		})
		for _, pay := range group.Payments {
			out = append(out, ledger.CreateCoin{
				PuzzleHash: pay.PuzzleHash,
				Amount:     pay.Amount,
				Memos:      pay.Memos,
			})
		}
	}
	for _, id := range sol.Assertions {
		out = append(out, ledger.AssertConcurrentSpend{CoinID: id})
	}
	return out, nil
}

func evalCat(p, solution ledger.Program) ([]ledger.Condition, error) {
	body, err := parseWrapper(p)
	if err != nil {
		return nil, err
	}
	sol, err := DecodeCatSolution(solution)
	if err != nil {
		return nil, err
	}
	inner, err := (NativeEvaluator{}).Evaluate(body.inner, sol.InnerSolution)
	if err != nil {
		return nil, err
	}

	// Wrap child outputs in the asset layer and account the spend's delta.
	var outputsSum uint64
	out := make([]ledger.Condition, 0, len(inner)+2)
	for _, c := range inner {
		if cc, ok := c.(ledger.CreateCoin); ok {
			outputsSum += cc.Amount
			out = append(out, ledger.CreateCoin{
				PuzzleHash: CatPuzzleHash(body.id, cc.PuzzleHash),
				Amount:     cc.Amount,
				Memos:      cc.Memos,
			})
			continue
		}
		out = append(out, c)
	}

	var recognizedIn int64
	if sol.HasLineage {
		recognizedIn = int64(sol.AmountIn)
	}
	myDelta := recognizedIn - int64(outputsSum) + sol.ExtraDelta
	if !sol.HasLineage && sol.ExtraDelta == 0 {
		// a coin with no asset ancestry is only valid under a policy
		return nil, &UnauthorizedSupplyChangeError{AssetID: body.id, Delta: int64(outputsSum)}
	}
	if sol.ExtraDelta != 0 {
		tailConds, err := evalTail(body.id, sol)
		if err != nil {
			return nil, err
		}
		out = append(out, tailConds...)
	}

	subtotalAfter := sol.PrevSubtotal + myDelta
	out = append(out,
		ledger.AssertCoinAnnouncement{
			AnnouncementID: ledger.CoinAnnouncementID(sol.PrevCoinID, RingMessage(sol.ThisCoinID, sol.PrevSubtotal)),
		},
		ledger.CreateCoinAnnouncement{
			Message: RingMessage(sol.NextCoinID, subtotalAfter),
		},
	)
	return out, nil
}

// evalTail checks the issuance policy revealed for a non-zero delta. The
// reveal must hash to the asset id itself, which is how asset identity and
// policy are bound together.
func evalTail(assetID ledger.Hash256, sol CatSolution) ([]ledger.Condition, error) {
	if len(sol.TailReveal) == 0 {
		return nil, &UnauthorizedSupplyChangeError{AssetID: assetID, Delta: sol.ExtraDelta}
	}
	if TreeHash(sol.TailReveal) != assetID {
		return nil, fmt.Errorf("%w: tail reveal does not hash to asset id", ErrMalformedSolution)
	}
	d := ledger.NewDecoder(sol.TailReveal)
	tag := d.ReadUint8()
	switch tag {
	case tagTailGenesis:
		genesis := d.ReadHash()
		if err := d.Finish(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProgram, err)
		}
		if sol.ParentCoinID != genesis || sol.ExtraDelta < 0 {
			return nil, &UnauthorizedSupplyChangeError{AssetID: assetID, Delta: sol.ExtraDelta}
		}
		return nil, nil
	case tagTailSignature:
		pkb := d.ReadBytes()
		if err := d.Finish(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProgram, err)
		}
		pk, err := bls.PublicKeyFromBytes(pkb)
		if err != nil {
			return nil, err
		}
		e := ledger.NewEncoder()
		e.WriteInt64(sol.ExtraDelta)
		return []ledger.Condition{ledger.AggSigMe{PublicKey: pk, Message: e.Bytes()}}, nil
	default:
		return nil, fmt.Errorf("%w: tail tag %#x", ErrUnknownProgram, tag)
	}
}

func evalLauncher(solution ledger.Program) ([]ledger.Condition, error) {
	sol, err := DecodeLauncherSolution(solution)
	if err != nil {
		return nil, err
	}
	if sol.Amount%2 == 0 {
		return nil, fmt.Errorf("%w: singleton amount must be odd", ErrMalformedSolution)
	}
	digest := sol.Digest()
	out := []ledger.Condition{
		ledger.CreateCoin{
			PuzzleHash: SingletonPuzzleHash(sol.LauncherID, sol.InnerPuzzleHash),
			Amount:     sol.Amount,
		},
		ledger.CreateCoinAnnouncement{Message: digest.Bytes()},
	}
	for _, id := range sol.Assertions {
		out = append(out, ledger.AssertConcurrentSpend{CoinID: id})
	}
	return out, nil
}

func evalSingleton(p, solution ledger.Program) ([]ledger.Condition, error) {
	body, err := parseWrapper(p)
	if err != nil {
		return nil, err
	}
	sol, err := DecodeSingletonSolution(solution)
	if err != nil {
		return nil, err
	}
	inner, err := (NativeEvaluator{}).Evaluate(body.inner, sol.InnerSolution)
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Condition, 0, len(inner))
	oddChildren := 0
	for _, c := range inner {
		if cc, ok := c.(ledger.CreateCoin); ok && cc.Amount%2 == 1 {
			oddChildren++
			out = append(out, ledger.CreateCoin{
				PuzzleHash: SingletonPuzzleHash(body.id, cc.PuzzleHash),
				Amount:     cc.Amount,
				Memos:      cc.Memos,
			})
			continue
		}
		out = append(out, c)
	}
	if sol.Melt {
		if oddChildren != 0 {
			return nil, fmt.Errorf("%w: melt must not recreate the singleton", ErrMalformedSolution)
		}
	} else if oddChildren != 1 {
		return nil, fmt.Errorf("%w: singleton must recreate exactly one odd child, got %d", ErrMalformedSolution, oddChildren)
	}
	return out, nil
}
