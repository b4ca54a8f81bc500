package trace

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// Filter returns the rows of t for which the boolean expression holds.
// The expression sees one variable per column, named after the column,
// plus "ts" for the record timestamp. Integer columns are exposed as
// int64, float columns as float64 and string columns as string, so
// "cpu == 2 && frequency > 1000000" selects over cpu_frequency the way
// a hand-written loop would.
func Filter(t *Table, code string) (*Table, error) {
	program, err := expr.Compile(code, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("trace: compile filter %q: %w", code, err)
	}

	out := t.Empty()
	env := make(map[string]interface{}, len(t.Columns())+1)
	for i := 0; i < t.Len(); i++ {
		env["ts"] = t.Time(i)
		for _, col := range t.Columns() {
			env[col.Name()] = col.Value(i)
		}
		res, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("trace: run filter %q: %w", code, err)
		}
		keep, ok := res.(bool)
		if !ok {
			return nil, fmt.Errorf("trace: filter %q evaluated to %T, want bool", code, res)
		}
		if keep {
			if err := out.appendRowFrom(t, i, t.Time(i)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
