package promotion

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkFilterEligible(b *testing.B) {
	items := make([]Item, 0, 200)
	for i := 0; i < 200; i++ {
		it := Item{ID: strconv.Itoa(i), Display: Inline{}, Status: StatusActive}
		if i%3 == 0 {
			it.Window = Window{End: at(-time.Hour)}
		}
		items = append(items, it)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = FilterEligible(items, now)
	}
}
