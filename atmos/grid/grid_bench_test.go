package grid

import "testing"

func BenchmarkInterpolate(b *testing.B) {
	ds := testDataset(false)

	targets := []struct {
		name             string
		teff, logg, monh float64
	}{
		{"node", 5500, 4.5, 0},
		{"axis", 5250, 4.25, 0},
		{"offnode", 5250, 4.25, 0.25},
	}

	for _, tt := range targets {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := Interpolate(ds, tt.teff, tt.logg, tt.monh); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
