package channel

import (
	"runtime"
	"sync"
	"testing"
)

// Single producer, single consumer throughput over a 64 KiB ring.
func BenchmarkSPSC(b *testing.B) {
	const chunk = 4096

	ch, err := New(1 << 16)
	if err != nil {
		b.Fatal(err)
	}
	tx, rx := ch.Sender(), ch.Receiver()

	b.SetBytes(chunk)
	b.ResetTimer()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range b.N {
			reg := tx.Reserve(chunk)
			if reg == nil {
				return
			}
			reg.Release()
		}
	}()

	total := 0
	for total < b.N*chunk {
		reg := rx.Next()
		if reg == nil {
			runtime.Gosched()
			continue
		}
		total += reg.Len()
		reg.Release()
	}

	ch.Close()
	wg.Wait()
}

func BenchmarkReserveRelease(b *testing.B) {
	ch, err := New(1 << 16)
	if err != nil {
		b.Fatal(err)
	}
	tx := ch.Sender()

	b.ResetTimer()
	for range b.N {
		reg := tx.Reserve(64)
		reg.Release()
	}
}
