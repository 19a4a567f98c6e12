package stdproc

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/lcls-cass/cassgo/cass/config"
	"github.com/lcls-cass/cassgo/cass/event"
	"github.com/lcls-cass/cassgo/cass/proc"
	"github.com/lcls-cass/cassgo/cass/result"
)

// algebraOps is the full operator set spec.md §4.H lists for
// pp1/pp2/pp4/pp9/pp13/pp40/pp41: "{+, −, ×, ÷, AND, OR, <, ≤, >, ≥,
// ==, ≠, NOT} element-wise between two results of matching shape, or
// between one result and a scalar". Every kind in this family shares
// one implementation; "operation" in config picks the symbol, so a
// single pp-kind string is reused across a deployment simply by
// varying that key per processor instance.
var algebraOps = map[string]func(a, b float32) float32{
	"+":  func(a, b float32) float32 { return a + b },
	"-":  func(a, b float32) float32 { return a - b },
	"*":  func(a, b float32) float32 { return a * b },
	"/":  func(a, b float32) float32 { return a / b },
	"and": func(a, b float32) float32 { return boolF(isTrue32(a) && isTrue32(b)) },
	"or":  func(a, b float32) float32 { return boolF(isTrue32(a) || isTrue32(b)) },
	"<":  func(a, b float32) float32 { return boolF(a < b) },
	"<=": func(a, b float32) float32 { return boolF(a <= b) },
	">":  func(a, b float32) float32 { return boolF(a > b) },
	">=": func(a, b float32) float32 { return boolF(a >= b) },
	"==": func(a, b float32) float32 { return boolF(a == b) },
	"!=": func(a, b float32) float32 { return boolF(a != b) },
}

func boolF(v bool) float32 {
	if v {
		return 1
	}
	return 0
}

func isTrue32(v float32) bool { return math.Abs(float64(v)) >= 0.00034526698 }

// NewAlgebra builds the pp1/pp2/pp4/pp9/pp13/pp40/pp41 family: reads
// "operation", "operand_a" and (for binary ops) "operand_b" from
// config. When operand_b names a ShapeValue (0-D) result, its value is
// broadcast against every bin of operand_a — the "or between one
// result and a scalar" case; a plain numeric constant is supported via
// "operand_b_constant" instead of an operand name.
func NewAlgebra(name string, workers int, store *config.Store, logger *zap.Logger) (proc.Processor, error) {
	op := store.String(name, "operation", "+")
	if op != "not" {
		if _, ok := algebraOps[op]; !ok {
			return nil, fmt.Errorf("stdproc %q: unknown algebra operation %q", name, op)
		}
	}

	var operandA, operandB proc.Processor
	hasConstB := store.Bool(name, "operand_b_is_constant", false)
	constB := float32(store.Float(name, "operand_b_constant", 0))

	b := proc.NewBase(name, workers, func() *result.Result { return result.NewValue(name) }, newLogger(logger))
	b.LoadFunc = func() error {
		b.AddDependency(store.String(name, "operand_a", ""))
		if op != "not" && !hasConstB {
			b.AddDependency(store.String(name, "operand_b", ""))
		}
		return nil
	}
	b.LoadSettingsFunc = func(resolve func(string) (proc.Processor, error)) error {
		var err error
		operandA, err = resolveOperand(resolve, name, store.String(name, "operand_a", ""))
		if err != nil {
			return err
		}
		if op != "not" && !hasConstB {
			operandB, err = resolveOperand(resolve, name, store.String(name, "operand_b", ""))
			if err != nil {
				return err
			}
		}
		return nil
	}
	b.ProcessFunc = func(evt *event.CASSEvent, res *result.Result) error {
		resA, err := operandA.Result(uint64(evt.ID))
		if err != nil {
			return err
		}
		resA.RLock()
		shape := resA.Shape()
		srcA := append([]float32(nil), resA.Storage()...)
		resA.RUnlock()

		res.Assign(resA)

		if op == "not" {
			out := res.Storage()
			for i, v := range srcA {
				out[i] = boolF(!isTrue32(v))
			}
			return nil
		}

		fn := algebraOps[op]
		var bVal float32
		var bVec []float32
		if hasConstB {
			bVal = constB
		} else {
			resB, err := operandB.Result(uint64(evt.ID))
			if err != nil {
				return err
			}
			resB.RLock()
			if resB.Shape() == result.ShapeValue {
				bVal = resB.GetValue()
			} else {
				if err := checkShape(resB.Shape(), shape); err != nil {
					resB.RUnlock()
					return err
				}
				bVec = append([]float32(nil), resB.Storage()...)
			}
			resB.RUnlock()
		}

		out := res.Storage()
		for i, a := range srcA {
			bv := bVal
			if bVec != nil {
				bv = bVec[i]
			}
			out[i] = fn(a, bv)
		}
		return nil
	}
	return b, nil
}
