package detour

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

type funcDifferences struct {
	In  []*argDifference
	Out []*argDifference
}

// err describes every difference in one error wrapping ErrSignature.
func (d *funcDifferences) err() error {
	var msgs []string
	for i, arg := range d.In {
		if arg != nil {
			msgs = append(msgs, fmt.Sprintf("argument %d: %v != %v", i, arg.A, arg.B))
		}
	}
	for i, out := range d.Out {
		if out != nil {
			msgs = append(msgs, fmt.Sprintf("output %d: %v != %v", i, out.A, out.B))
		}
	}

	return errors.Wrap(ErrSignature, strings.Join(msgs, "; "))
}

type argDifference struct {
	A reflect.Type
	B reflect.Type
}

// diffFuncs compares the signatures of two function types. The first skipIn
// arguments aren't compared, which allows a method's receiver to differ. nil
// is returned when the signatures match.
func diffFuncs(at, bt reflect.Type, skipIn int) *funcDifferences {
	in, inDiffers := diffTypes(at.NumIn(), bt.NumIn(), at.In, bt.In, skipIn)
	out, outDiffers := diffTypes(at.NumOut(), bt.NumOut(), at.Out, bt.Out, 0)
	if !inDiffers && !outDiffers {
		return nil
	}

	return &funcDifferences{In: in, Out: out}
}

func diffTypes(na, nb int, a, b func(int) reflect.Type, skip int) ([]*argDifference, bool) {
	diffs := make([]*argDifference, max(na, nb))
	differs := false

	for i := range diffs {
		var at, bt reflect.Type
		if i < na {
			at = a(i)
		}
		if i < nb {
			bt = b(i)
		}

		if i < skip && at != nil && bt != nil {
			continue
		}
		if at != bt {
			diffs[i] = &argDifference{A: at, B: bt}
			differs = true
		}
	}

	return diffs, differs
}
