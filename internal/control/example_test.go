package control_test

import (
	"fmt"

	"github.com/san-kum/phytosim/internal/control"
	"github.com/san-kum/phytosim/internal/dynamo"
)

func ExampleNewTurbidostat() {
	pol, err := control.NewTurbidostat(2, 1)
	if err != nil {
		fmt.Println(err)
		return
	}
	u := pol.Compute(dynamo.State{1, 0.5, 4}, 0)
	fmt.Printf("d_eff = %.1f\n", u[0])
	// Output: d_eff = 2.0
}
