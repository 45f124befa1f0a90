package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRequestSequencer_StrictOrdering(t *testing.T) {
	seq := NewRequestSequencer()
	defer seq.Close()

	releaseA := make(chan struct{})
	aSettled := make(chan struct{})
	bStarted := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
			<-releaseA // A is slow
			close(aSettled)
			return []byte("a"), nil
		})
	}()

	// Give A time to reach the head of the queue.
	time.Sleep(50 * time.Millisecond)

	go func() {
		defer wg.Done()
		seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
			close(bStarted)
			return []byte("b"), nil
		})
	}()

	// B's factory must not run while A is in flight.
	select {
	case <-bStarted:
		t.Fatal("B's factory invoked before A settled")
	case <-time.After(100 * time.Millisecond):
	}

	close(releaseA)

	select {
	case <-bStarted:
	case <-time.After(time.Second):
		t.Fatal("B's factory never invoked after A settled")
	}

	select {
	case <-aSettled:
	default:
		t.Error("B started before A settled")
	}

	wg.Wait()
}

func TestRequestSequencer_FailureDoesNotStallChain(t *testing.T) {
	seq := NewRequestSequencer()
	defer seq.Close()

	wantErr := errors.New("exchange rejected")
	_, err := seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// The next call proceeds despite the previous failure.
	body, err := seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("chain stalled after failure: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

func TestRequestSequencer_NoncesStrictlyIncrease(t *testing.T) {
	seq := NewRequestSequencer()
	defer seq.Close()

	var nonces []int64
	for i := 0; i < 10; i++ {
		seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
			nonces = append(nonces, nc.Nonce)
			return nil, nil
		})
	}

	for i := 1; i < len(nonces); i++ {
		if nonces[i] <= nonces[i-1] {
			t.Fatalf("nonce %d (%d) not greater than nonce %d (%d)",
				i, nonces[i], i-1, nonces[i-1])
		}
	}
}

func TestRequestSequencer_CanceledCallerDoesNotBlockChain(t *testing.T) {
	seq := NewRequestSequencer()
	defer seq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seq.Do(ctx, func(ctx context.Context, nc NonceContext) ([]byte, error) {
		t.Error("factory invoked for canceled caller")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// A live caller still gets through.
	if _, err := seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("chain blocked after canceled caller: %v", err)
	}
}

func TestRequestSequencer_CloseFailsQueued(t *testing.T) {
	seq := NewRequestSequencer()

	release := make(chan struct{})
	go seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
		<-release
		return nil, nil
	})
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := seq.Do(context.Background(), func(ctx context.Context, nc NonceContext) ([]byte, error) {
			return nil, nil
		})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	close(release)
	seq.Close()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, ErrSequencerClosed) {
			t.Errorf("queued call err = %v, want nil or ErrSequencerClosed", err)
		}
	case <-time.After(time.Second):
		t.Error("queued call never settled after Close")
	}
}
