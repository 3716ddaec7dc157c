package puzzle

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/ledger"
)

// StandardSolution encodes a declarative condition list as the solution to a
// standard spend.
func StandardSolution(conds []ledger.Condition) (ledger.Program, error) {
	return ledger.EncodeConditions(conds)
}

// SettlementSolution is the solution to a settlement coin: one or more
// notarized payment groups. The settlement program pays them out verbatim
// and announces each group's digest. Assertions are concurrency pins the
// spend declares on other coins of its batch.
type SettlementSolution struct {
	Groups     []ledger.NotarizedPayment
	Assertions []ledger.Hash256
}

func (s SettlementSolution) Encode() ledger.Program {
	e := ledger.NewEncoder()
	e.WriteUint32(uint32(len(s.Groups)))
	for _, g := range s.Groups {
		g.EncodeTo(e)
	}
	e.WriteUint32(uint32(len(s.Assertions)))
	for _, id := range s.Assertions {
		e.WriteHash(id)
	}
	return ledger.Program(e.Bytes())
}

func DecodeSettlementSolution(p ledger.Program) (SettlementSolution, error) {
	var s SettlementSolution
	d := ledger.NewDecoder(p)
	n := d.ReadUint32()
	if err := d.Err(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	s.Groups = make([]ledger.NotarizedPayment, n)
	for i := range s.Groups {
		s.Groups[i].DecodeFrom(d)
	}
	na := d.ReadUint32()
	if err := d.Err(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	for i := uint32(0); i < na; i++ {
		s.Assertions = append(s.Assertions, d.ReadHash())
	}
	if err := d.Finish(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	return s, nil
}

// CatSolution carries everything the wrapper layer needs: the inner
// solution, the lineage proof (absent for a genesis spend), the ring
// neighbors with the running subtotal, and the optional TAIL reveal that
// authorizes a non-zero supply change.
type CatSolution struct {
	InnerSolution ledger.Program
	HasLineage    bool
	Lineage       ledger.LineageProof
	ParentCoinID  ledger.Hash256
	PrevCoinID    ledger.Hash256
	ThisCoinID    ledger.Hash256
	NextCoinID    ledger.Hash256
	PrevSubtotal  int64
	AmountIn      uint64
	ExtraDelta    int64
	TailReveal    ledger.Program
	TailSolution  ledger.Program
}

func (s CatSolution) Encode() ledger.Program {
	e := ledger.NewEncoder()
	e.WriteBytes(s.InnerSolution)
	e.WriteBool(s.HasLineage)
	s.Lineage.EncodeTo(e)
	e.WriteHash(s.ParentCoinID)
	e.WriteHash(s.PrevCoinID)
	e.WriteHash(s.ThisCoinID)
	e.WriteHash(s.NextCoinID)
	e.WriteInt64(s.PrevSubtotal)
	e.WriteUint64(s.AmountIn)
	e.WriteInt64(s.ExtraDelta)
	e.WriteBytes(s.TailReveal)
	e.WriteBytes(s.TailSolution)
	return ledger.Program(e.Bytes())
}

func DecodeCatSolution(p ledger.Program) (CatSolution, error) {
	var s CatSolution
	d := ledger.NewDecoder(p)
	s.InnerSolution = ledger.Program(d.ReadBytes())
	s.HasLineage = d.ReadBool()
	s.Lineage.DecodeFrom(d)
	s.ParentCoinID = d.ReadHash()
	s.PrevCoinID = d.ReadHash()
	s.ThisCoinID = d.ReadHash()
	s.NextCoinID = d.ReadHash()
	s.PrevSubtotal = d.ReadInt64()
	s.AmountIn = d.ReadUint64()
	s.ExtraDelta = d.ReadInt64()
	s.TailReveal = ledger.Program(d.ReadBytes())
	s.TailSolution = ledger.Program(d.ReadBytes())
	if err := d.Finish(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	return s, nil
}

// RingMessage is the announcement body chaining ring member subtotals: it
// names the next member and the running subtotal handed to it.
func RingMessage(nextCoinID ledger.Hash256, subtotal int64) []byte {
	e := ledger.NewEncoder()
	e.WriteHash(nextCoinID)
	e.WriteInt64(subtotal)
	return e.Bytes()
}

// LauncherSolution creates a singleton from the public launcher. The
// launcher id is the launcher coin's own id; evaluation re-announces the
// launch digest so the creating spend can pin it. Assertions are concurrency
// pins on other coins of the batch, outside the digest.
type LauncherSolution struct {
	LauncherID      ledger.Hash256
	InnerPuzzleHash ledger.Hash256
	Amount          uint64
	KeyValueDigest  ledger.Hash256
	Assertions      []ledger.Hash256
}

func (s LauncherSolution) Encode() ledger.Program {
	e := ledger.NewEncoder()
	e.WriteHash(s.LauncherID)
	e.WriteHash(s.InnerPuzzleHash)
	e.WriteUint64(s.Amount)
	e.WriteHash(s.KeyValueDigest)
	e.WriteUint32(uint32(len(s.Assertions)))
	for _, id := range s.Assertions {
		e.WriteHash(id)
	}
	return ledger.Program(e.Bytes())
}

func DecodeLauncherSolution(p ledger.Program) (LauncherSolution, error) {
	var s LauncherSolution
	d := ledger.NewDecoder(p)
	s.LauncherID = d.ReadHash()
	s.InnerPuzzleHash = d.ReadHash()
	s.Amount = d.ReadUint64()
	s.KeyValueDigest = d.ReadHash()
	na := d.ReadUint32()
	if err := d.Err(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	for i := uint32(0); i < na; i++ {
		s.Assertions = append(s.Assertions, d.ReadHash())
	}
	if err := d.Finish(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	return s, nil
}

// Digest commits the launch parameters. The creating spend asserts it before
// batch wiring runs, so concurrency assertions stay out of the digest.
func (s LauncherSolution) Digest() ledger.Hash256 {
	e := ledger.NewEncoder()
	e.WriteHash(s.LauncherID)
	e.WriteHash(s.InnerPuzzleHash)
	e.WriteUint64(s.Amount)
	e.WriteHash(s.KeyValueDigest)
	return ledger.HashBytes(e.Bytes())
}

// SingletonSolution spends a singleton: either recreating it (exactly one
// odd-amount child, wrapped) or melting it.
type SingletonSolution struct {
	InnerSolution ledger.Program
	Lineage       ledger.LineageProof
	Melt          bool
}

func (s SingletonSolution) Encode() ledger.Program {
	e := ledger.NewEncoder()
	e.WriteBytes(s.InnerSolution)
	s.Lineage.EncodeTo(e)
	e.WriteBool(s.Melt)
	return ledger.Program(e.Bytes())
}

func DecodeSingletonSolution(p ledger.Program) (SingletonSolution, error) {
	var s SingletonSolution
	d := ledger.NewDecoder(p)
	s.InnerSolution = ledger.Program(d.ReadBytes())
	s.Lineage.DecodeFrom(d)
	s.Melt = d.ReadBool()
	if err := d.Finish(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSolution, err)
	}
	return s, nil
}
