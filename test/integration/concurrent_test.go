package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oneshot-http/oneshot/pkg/oneshot"
)

// TestConcurrentConnections tests handling many simultaneous one-shot
// cycles against a multicore server.
func TestConcurrentConnections(t *testing.T) {
	config := oneshot.DefaultConfig()
	config.Addr = getTestPort()
	config.Multicore = true
	config.NumEventLoop = 0
	server := oneshot.New(config)

	go func() { _ = server.Start() }()
	if err := waitForServer(config.Addr, 2*time.Second); err != nil {
		t.Fatalf("Server error: %v", err)
	}
	defer server.Stop(context.Background())

	const (
		workers  = 8
		requests = 25
	)

	var wg sync.WaitGroup
	errors := make(chan error, workers*requests)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for r := 0; r < requests; r++ {
				data, err := sendRaw(config.Addr, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
				if err != nil {
					errors <- fmt.Errorf("worker %d request %d failed: %v", worker, r, err)
					continue
				}

				if string(data) != oneshot.DefaultResponse {
					errors <- fmt.Errorf("worker %d request %d: unexpected response %q", worker, r, data)
				}
			}
		}(w)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}
}

// TestConcurrentMixedTraffic tests valid and garbage connections
// arriving together.
func TestConcurrentMixedTraffic(t *testing.T) {
	config := oneshot.DefaultConfig()
	config.Addr = getTestPort()
	config.Multicore = true
	config.NumEventLoop = 0
	server := oneshot.New(config)

	go func() { _ = server.Start() }()
	if err := waitForServer(config.Addr, 2*time.Second); err != nil {
		t.Fatalf("Server error: %v", err)
	}
	defer server.Stop(context.Background())

	const pairs = 20

	var wg sync.WaitGroup
	errors := make(chan error, pairs*2)

	for i := 0; i < pairs; i++ {
		wg.Add(2)

		go func(id int) {
			defer wg.Done()

			data, err := sendRaw(config.Addr, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
			if err != nil {
				errors <- fmt.Errorf("valid request %d failed: %v", id, err)
				return
			}
			if string(data) != oneshot.DefaultResponse {
				errors <- fmt.Errorf("valid request %d: unexpected response %q", id, data)
			}
		}(i)

		go func(id int) {
			defer wg.Done()

			data, _ := sendRaw(config.Addr, "?not http at all\r\n")
			if len(data) != 0 {
				errors <- fmt.Errorf("garbage request %d: unexpected response %q", id, data)
			}
		}(i)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}
}
