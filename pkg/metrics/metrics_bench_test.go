package metrics

import (
	"testing"
	"time"
)

func BenchmarkCollector_RecordPut(b *testing.B) {
	mc := NewCollector()
	duration := 10 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.RecordPut(duration, true)
	}
}

func BenchmarkCollector_RecordGet(b *testing.B) {
	mc := NewCollector()
	duration := 5 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.RecordGet(duration, true, nil)
	}
}

func BenchmarkCollector_RecordRemove(b *testing.B) {
	mc := NewCollector()
	duration := 7 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.RecordRemove(duration, true)
	}
}

func BenchmarkCollector_RecordFlush(b *testing.B) {
	mc := NewCollector()
	duration := 3 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.RecordFlush(duration)
	}
}

func BenchmarkCollector_Snapshot(b *testing.B) {
	mc := NewCollector()

	for i := 0; i < 1000; i++ {
		mc.RecordPut(10*time.Millisecond, true)
		mc.RecordGet(5*time.Millisecond, true, nil)
		mc.RecordBloomCheck(true)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mc.Snapshot()
	}
}

func BenchmarkTimingHistogram_Record(b *testing.B) {
	th := NewTimingHistogram(1000)
	duration := 10 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		th.Record(duration)
	}
}

func BenchmarkTimingHistogram_GetBuckets(b *testing.B) {
	th := NewTimingHistogram(1000)

	for i := 0; i < 1000; i++ {
		th.Record(time.Duration(i) * time.Millisecond)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = th.GetBuckets()
	}
}

func BenchmarkTimingHistogram_GetPercentiles(b *testing.B) {
	th := NewTimingHistogram(1000)

	for i := 0; i < 1000; i++ {
		th.Record(time.Duration(i) * time.Millisecond)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = th.GetPercentiles()
	}
}

func BenchmarkCollector_Parallel(b *testing.B) {
	mc := NewCollector()
	duration := 10 * time.Millisecond

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mc.RecordPut(duration, true)
		}
	})
}

func BenchmarkCollector_MixedOperations(b *testing.B) {
	mc := NewCollector()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc.RecordPut(10*time.Millisecond, true)
		mc.RecordGet(5*time.Millisecond, true, nil)
		mc.RecordRemove(7*time.Millisecond, true)
		mc.RecordFlush(3 * time.Millisecond)
		mc.RecordBloomCheck(true)
		mc.RecordWALAppend()
	}
}

func BenchmarkCollector_ConcurrentReads(b *testing.B) {
	mc := NewCollector()

	for i := 0; i < 1000; i++ {
		mc.RecordGet(10*time.Millisecond, true, nil)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = mc.Snapshot()
		}
	})
}

func BenchmarkCollector_ConcurrentWrites(b *testing.B) {
	mc := NewCollector()
	duration := 10 * time.Millisecond

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			mc.RecordPut(duration, true)
			mc.RecordGet(duration, true, nil)
			mc.RecordBloomCheck(true)
		}
	})
}
