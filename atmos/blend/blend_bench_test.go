package blend

import (
	"fmt"
	"testing"

	"github.com/cwbudde/algo-atmos/internal/testutil"
)

// Benchmark a full pair interpolation at typical grid depths.
func BenchmarkBlend(b *testing.B) {
	sizes := []int{32, 48, 72}

	for _, ndep := range sizes {
		p1 := testutil.MakeAtmo(testutil.AtmoSpec{Teff: 5000, Logg: 4.0, Ndep: ndep})
		p2 := testutil.MakeAtmo(testutil.AtmoSpec{Teff: 5000, Logg: 4.0, Ndep: ndep, ShiftX: 0.3, ShiftY: 0.1})

		b.Run(fmt.Sprintf("ndep=%d", ndep), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = Blend(&p1, &p2, 0.5)
			}
		})
	}
}
