package random_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/artpar/conftree/adapters/random"
)

func TestReal_Bytes(t *testing.T) {
	r := random.Real{}

	b1, err := r.Bytes(32)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if len(b1) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(b1))
	}

	b2, _ := r.Bytes(32)
	if bytes.Equal(b1, b2) {
		t.Error("two draws returned identical bytes")
	}
}

func TestFake_Reproducible(t *testing.T) {
	a := random.NewFake()
	b := random.NewFake()

	for i := 0; i < 3; i++ {
		av, _ := a.Bytes(16)
		bv, _ := b.Bytes(16)
		if !bytes.Equal(av, bv) {
			t.Fatalf("draw %d: fakes diverged: %v vs %v", i, av, bv)
		}
	}
}

func TestFake_WithValues(t *testing.T) {
	f := random.NewFake().WithValues(
		[]byte{100, 101, 102, 103},
		[]byte{200, 201},
	)

	b, _ := f.Bytes(4)
	if !bytes.Equal(b, []byte{100, 101, 102, 103}) {
		t.Errorf("first draw = %v, want the first preset", b)
	}

	// short preset is zero-padded to the requested length
	b, _ = f.Bytes(4)
	if !bytes.Equal(b, []byte{200, 201, 0, 0}) {
		t.Errorf("second draw = %v, want padded second preset", b)
	}

	// presets exhausted, counter pattern takes over
	b, _ = f.Bytes(4)
	if b[0] != 1 {
		t.Errorf("third draw = %v, want counter bytes starting at 1", b)
	}
}

func TestFake_Reset(t *testing.T) {
	f := random.NewFake().WithValues([]byte{9, 9, 9, 9})

	f.Bytes(4)
	f.Bytes(4)
	f.Reset()

	b, _ := f.Bytes(4)
	if b[0] != 9 {
		t.Errorf("draw after Reset = %v, want the preset again", b)
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	f := random.NewFake()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				f.Bytes(32)
			}
		}()
	}
	wg.Wait()
}
